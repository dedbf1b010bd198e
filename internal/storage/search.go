/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * Licensed under the Apache License, Version 2.0.
 */
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"gofountain/internal/fountain"
)

// SearchQuery describes a search over indexed elements.
// Text uses SQLite FTS5 syntax (simple terms, phrases in quotes, AND/OR/NOT).
// Filters are optional. Types take element type names like dialogue or scene_heading.
// Character matches the normalized speaker; Scene matches a substring of the enclosing scene heading.
// Limit/Offset implement pagination; reasonable defaults applied if zero.
type SearchQuery struct {
	Text      string
	Types     []string
	Character string
	Scene     string
	ScriptID  string
	Limit     int
	Offset    int
}

// SearchResult represents a single matching element.
// Snippet is a highlighted excerpt using [ ] markers when Text was given,
// otherwise the element text itself.
type SearchResult struct {
	ElemID     int64  `json:"elem_id"`
	ScriptID   string `json:"script_id"`
	Path       string `json:"path"`
	Seq        int    `json:"seq"`
	Type       string `json:"type"`
	LineNumber int    `json:"line_number"`
	Character  string `json:"character,omitempty"`
	Scene      string `json:"scene,omitempty"`
	Snippet    string `json:"snippet"`
}

// Search performs full-text search with optional filters over the library index.
// When q.Text is empty, it falls back to a plain scan over elements with filters applied.
func Search(ctx context.Context, root string, q SearchQuery) ([]SearchResult, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("library root is required")
	}
	db, err := InitOrOpenIndex(root)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return searchDB(ctx, db, q)
}

func searchDB(ctx context.Context, db *sql.DB, q SearchQuery) ([]SearchResult, error) {
	var args []any
	var sb strings.Builder
	const cols = "e.elem_id, e.script_id, s.path, e.seq, e.type, e.line_number, COALESCE(e.character,''), COALESCE(e.scene,''), "
	if strings.TrimSpace(q.Text) != "" {
		sb.WriteString("SELECT " + cols + "snippet(fts_elements, 0, '[', ']', '…', 10)\n")
		sb.WriteString("FROM fts_elements JOIN elements e ON fts_elements.rowid = e.elem_id\n")
		sb.WriteString("JOIN scripts s ON s.id = e.script_id\n")
		sb.WriteString("WHERE fts_elements MATCH ?\n")
		args = append(args, q.Text)
	} else {
		sb.WriteString("SELECT " + cols + "e.text\n")
		sb.WriteString("FROM elements e JOIN scripts s ON s.id = e.script_id\nWHERE 1=1\n")
	}
	if len(q.Types) > 0 {
		sb.WriteString(" AND e.type IN (" + placeholders(len(q.Types)) + ")\n")
		for _, t := range q.Types {
			args = append(args, strings.ToLower(strings.TrimSpace(t)))
		}
	}
	if s := strings.TrimSpace(q.Character); s != "" {
		sb.WriteString(" AND e.character = ?\n")
		args = append(args, fountain.CueName(s))
	}
	if s := strings.TrimSpace(q.Scene); s != "" {
		sb.WriteString(" AND lower(e.scene) LIKE ?\n")
		args = append(args, likeContains(strings.ToLower(s)))
	}
	if s := strings.TrimSpace(q.ScriptID); s != "" {
		sb.WriteString(" AND e.script_id = ?\n")
		args = append(args, s)
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	sb.WriteString("ORDER BY s.path, e.seq\n")
	sb.WriteString("LIMIT ? OFFSET ?")
	args = append(args, limit, q.Offset)

	rows, err := db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("search query: %w", err)
	}
	defer rows.Close()
	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		var sn sql.NullString
		if err := rows.Scan(&r.ElemID, &r.ScriptID, &r.Path, &r.Seq, &r.Type, &r.LineNumber, &r.Character, &r.Scene, &sn); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		r.Snippet = sn.String
		out = append(out, r)
	}
	return out, rows.Err()
}

func likeContains(s string) string { return "%" + s + "%" }

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	b := strings.Builder{}
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString("?")
	}
	return b.String()
}
