/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package backend

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestSignAndVerifyToken(t *testing.T) {
	tok, err := signToken("s3cret", "alice", time.Now().Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	sub, err := verifyToken("s3cret", tok)
	if err != nil || sub != "alice" {
		t.Fatalf("verify = %q, %v", sub, err)
	}
	if _, err := verifyToken("other", tok); err == nil {
		t.Fatalf("wrong secret must fail")
	}
	expired, _ := signToken("s3cret", "alice", time.Now().Add(-time.Minute))
	if _, err := verifyToken("s3cret", expired); err == nil {
		t.Fatalf("expired token must fail")
	}
	if _, err := verifyToken("s3cret", "garbage"); err == nil {
		t.Fatalf("malformed token must fail")
	}
	other, _ := signToken("s3cret", "mallory", time.Now().Add(time.Minute))
	tampered := strings.Split(other, ".")[0] + "." + strings.Split(tok, ".")[1]
	if _, err := verifyToken("s3cret", tampered); err == nil {
		t.Fatalf("tampered token must fail")
	}
}

func TestWithAuth(t *testing.T) {
	h := withAuth("k", func(w http.ResponseWriter, r *http.Request, sub string) {
		_, _ = w.Write([]byte(sub))
	})
	tok, _ := signToken("k", "bob", time.Now().Add(time.Hour))

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong_scheme", "Basic abc", http.StatusUnauthorized},
		{"bad_token", "Bearer nope", http.StatusUnauthorized},
		{"ok", "Bearer " + tok, http.StatusOK},
		{"lowercase_scheme", "bearer " + tok, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h(rec, req)
			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d", rec.Code, tc.status)
			}
			if tc.status == http.StatusOK && !strings.Contains(rec.Body.String(), "bob") {
				t.Fatalf("subject not passed through: %q", rec.Body.String())
			}
		})
	}
}
