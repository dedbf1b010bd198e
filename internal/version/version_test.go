package version

import "testing"

func TestVersionStringNonEmpty(t *testing.T) {
	if s := String(); s == "" {
		t.Fatalf("version string is empty")
	}
}

func TestVersionStringIncludesCommit(t *testing.T) {
	oldV, oldC, oldD := Version, Commit, Date
	t.Cleanup(func() { Version, Commit, Date = oldV, oldC, oldD })
	Version, Commit, Date = "1.2.3", "abcdef0123", "2025-01-02"
	if got, want := String(), "1.2.3 (abcdef0, 2025-01-02)"; got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}
