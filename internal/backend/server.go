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
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"gofountain/internal/fountain"
	applog "gofountain/internal/log"
	"gofountain/internal/render"
	"gofountain/internal/storage"
	"gofountain/internal/telemetry"
	"gofountain/internal/version"
)

// MaxBodyBytes caps request bodies carrying script source.
const MaxBodyBytes = 8 << 20

const devSecret = "dev-secret-change-me"

// ServerConfig holds what Start needs. An empty DatabaseURL selects the in-memory store.
type ServerConfig struct {
	Addr        string
	DatabaseURL string
	Secret      string
}

// Server exposes parsing, rendering and the published script store over HTTP.
type Server struct {
	store  Store
	secret string
	log    *slog.Logger
}

func NewServer(store Store, secret string) *Server {
	l := applog.WithComponent("backend")
	if secret == "" {
		secret = devSecret
		l.Warn("GFT_AUTH_SECRET not set; using insecure dev secret")
	}
	return &Server{store: store, secret: secret, log: l}
}

// Start opens the store, serves until ctx is cancelled and then shuts down gracefully.
func Start(ctx context.Context, cfg ServerConfig) error {
	var store Store
	if cfg.DatabaseURL != "" {
		pg, err := OpenPGStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		store = pg
	} else {
		store = NewMemStore()
	}
	defer func() { _ = store.Close() }()

	addr := cfg.Addr
	if addr == "" {
		addr = ":8080"
	}
	s := NewServer(store, cfg.Secret)
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", slog.String("addr", addr), slog.Bool("postgres", cfg.DatabaseURL != ""))
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.log.Info("shutting down")
		return srv.Shutdown(sctx)
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.store.Ping(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("store not ready"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	mux.HandleFunc("GET /version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(version.String()))
	})

	mux.HandleFunc("POST /api/auth/token", s.handleToken)
	mux.HandleFunc("POST /api/parse", s.handleParse)
	mux.HandleFunc("POST /api/render/html", s.handleRenderHTML)

	mux.HandleFunc("GET /api/scripts", s.handleListScripts)
	mux.HandleFunc("POST /api/scripts", withAuth(s.secret, s.handlePublish))
	mux.HandleFunc("GET /api/scripts/{id}", s.handleGetScript)
	mux.HandleFunc("GET /api/scripts/{id}/html", s.handleGetScriptHTML)
	mux.HandleFunc("GET /api/search", withAuth(s.secret, s.handleSearch))
	return s.logRequests(mux)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Debug("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Duration("dur", time.Since(start)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// POST /api/auth/token { "subject": "name", "ttl_seconds": 3600 } -> { token, expires_at }
//
// Issuance is unauthenticated: any caller gets a token for any subject. Tokens
// only separate owners who cooperate; run behind a trusted proxy otherwise.
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Subject    string `json:"subject"`
		TTLSeconds int64  `json:"ttl_seconds"`
	}
	b, _ := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	_ = r.Body.Close()
	_ = json.Unmarshal(b, &req)
	if req.Subject == "" {
		req.Subject = "dev"
	}
	if req.TTLSeconds <= 0 || req.TTLSeconds > 24*3600 {
		req.TTLSeconds = 3600
	}
	exp := time.Now().Add(time.Duration(req.TTLSeconds) * time.Second)
	tok, err := signToken(s.secret, req.Subject, exp)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":      tok,
		"expires_at": exp.UTC().Format(time.RFC3339),
	})
}

// POST /api/parse with the script as body. ?format=html answers with a standalone page.
func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.readDocument(w, r)
	if !ok {
		return
	}
	telemetry.ScriptParsed(doc.Statistics(), "server")
	if strings.EqualFold(r.URL.Query().Get("format"), string(render.FormatHTML)) {
		opt := htmlOptionsFromQuery(r)
		opt.Standalone = true
		s.writeHTML(w, doc, opt)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := render.JSON(w, doc); err != nil {
		s.log.Error("encode document", slog.Any("err", err))
	}
}

// POST /api/render/html?theme=dark&standalone=1
func (s *Server) handleRenderHTML(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.readDocument(w, r)
	if !ok {
		return
	}
	s.writeHTML(w, doc, htmlOptionsFromQuery(r))
}

func (s *Server) handleListScripts(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.List(r.Context())
	if err != nil {
		s.storeError(w, err)
		return
	}
	if list == nil {
		list = []ScriptSummary{}
	}
	writeJSON(w, http.StatusOK, list)
}

// POST /api/scripts { "id": "optional uuid", "source": "..." }
func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request, sub string) {
	var req struct {
		ID     string `json:"id"`
		Source string `json:"source"`
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		writeError(w, bodyStatus(err), err)
		return
	}
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	sum, err := s.store.Publish(r.Context(), sub, req.ID, req.Source)
	if err != nil {
		s.storeError(w, err)
		return
	}
	s.log.InfoContext(applog.WithScript(r.Context(), sum.ID), "script published", slog.Int64("version", sum.Version))
	status := http.StatusOK
	if sum.Version == 1 {
		status = http.StatusCreated
	}
	writeJSON(w, status, sum)
}

func (s *Server) handleGetScript(w http.ResponseWriter, r *http.Request) {
	sc, err := s.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

func (s *Server) handleGetScriptHTML(w http.ResponseWriter, r *http.Request) {
	sc, err := s.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.storeError(w, err)
		return
	}
	doc, err := fountain.FromJSON(sc.Document)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	opt := htmlOptionsFromQuery(r)
	opt.Standalone = true
	s.writeHTML(w, doc, opt)
}

// GET /api/search?q=&type=dialogue&type=action&character=&scene=&script=&limit=&offset=
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request, _ string) {
	qv := r.URL.Query()
	q := storage.SearchQuery{
		Text:      qv.Get("q"),
		Types:     qv["type"],
		Character: qv.Get("character"),
		Scene:     qv.Get("scene"),
		ScriptID:  qv.Get("script"),
	}
	var err error
	if q.Limit, err = intParam(qv.Get("limit")); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("limit: %w", err))
		return
	}
	if q.Offset, err = intParam(qv.Get("offset")); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("offset: %w", err))
		return
	}
	res, err := s.store.Search(r.Context(), q)
	if err != nil {
		s.storeError(w, err)
		return
	}
	if res == nil {
		res = []storage.SearchResult{}
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) readDocument(w http.ResponseWriter, r *http.Request) (*fountain.Document, bool) {
	doc, err := fountain.ParseReader(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		if errors.Is(err, fountain.ErrDecode) {
			writeError(w, http.StatusBadRequest, err)
		} else {
			writeError(w, bodyStatus(err), err)
		}
		return nil, false
	}
	return doc, true
}

func (s *Server) writeHTML(w http.ResponseWriter, doc *fountain.Document, opt render.HTMLOptions) {
	out, err := render.HTMLString(doc, opt)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, out)
}

func (s *Server) storeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, ErrForbidden):
		writeError(w, http.StatusForbidden, err)
	case errors.Is(err, ErrInvalidID), errors.Is(err, fountain.ErrDecode):
		writeError(w, http.StatusBadRequest, err)
	default:
		s.log.Error("store", slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, err)
	}
}

func htmlOptionsFromQuery(r *http.Request) render.HTMLOptions {
	opt := render.DefaultHTMLOptions()
	qv := r.URL.Query()
	if t := qv.Get("theme"); t != "" {
		opt.Theme = t
	}
	if b, err := strconv.ParseBool(qv.Get("standalone")); err == nil {
		opt.Standalone = b
	}
	if b, err := strconv.ParseBool(qv.Get("notes")); err == nil {
		opt.IncludeNotes = b
	}
	if b, err := strconv.ParseBool(qv.Get("boneyard")); err == nil {
		opt.IncludeBoneyard = b
	}
	return opt
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

func bodyStatus(err error) int {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

type tokenClaims struct {
	Sub string `json:"sub"`
	Exp int64  `json:"exp"` // unix seconds
}

func signToken(secret, subject string, exp time.Time) (string, error) {
	claims := tokenClaims{Sub: subject, Exp: exp.Unix()}
	b, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	h := hmac.New(sha256.New, []byte(secret))
	_, _ = h.Write(b)
	sig := h.Sum(nil)
	payload := base64.RawURLEncoding.EncodeToString(b)
	signature := base64.RawURLEncoding.EncodeToString(sig)
	return payload + "." + signature, nil
}

func verifyToken(secret, token string) (string, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid token format")
	}
	payloadB, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("invalid token payload")
	}
	sigB, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("invalid token signature")
	}
	h := hmac.New(sha256.New, []byte(secret))
	_, _ = h.Write(payloadB)
	if !hmac.Equal(h.Sum(nil), sigB) {
		return "", fmt.Errorf("bad signature")
	}
	var claims tokenClaims
	if err := json.Unmarshal(payloadB, &claims); err != nil {
		return "", fmt.Errorf("bad claims")
	}
	if claims.Exp < time.Now().Unix() {
		return "", fmt.Errorf("token expired")
	}
	if claims.Sub == "" {
		claims.Sub = "dev"
	}
	return claims.Sub, nil
}

func withAuth(secret string, next func(w http.ResponseWriter, r *http.Request, subject string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if len(auth) < len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}
		sub, err := verifyToken(secret, strings.TrimSpace(auth[len(prefix):]))
		if err != nil {
			writeError(w, http.StatusUnauthorized, fmt.Errorf("invalid token: %w", err))
			return
		}
		next(w, r.WithContext(applog.WithOwner(r.Context(), sub)), sub)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}
