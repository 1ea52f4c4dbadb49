package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"coveragescan/internal/usecase"
)

// ScanRunner executes one ingestion invocation for a set of source kinds.
type ScanRunner interface {
	Run(ctx context.Context, kinds []string, now time.Time) (usecase.RunReport, error)
}

// ClassifyRunner executes one classifier invocation.
type ClassifyRunner interface {
	Run(ctx context.Context) (usecase.ClassifyReport, error)
}

// Server exposes the pipeline stages as scheduled HTTP entry points. Every
// invocation is stateless; the external scheduler owns the cadence.
type Server struct {
	authToken string
	deadline  time.Duration
	ingestor  ScanRunner
	classify  ClassifyRunner
	logger    *slog.Logger
}

// New builds the handler set.
func New(authToken string, deadline time.Duration, ingestor ScanRunner, classify ClassifyRunner, logger *slog.Logger) *Server {
	if deadline <= 0 {
		deadline = 4 * time.Minute
	}
	return &Server{
		authToken: authToken,
		deadline:  deadline,
		ingestor:  ingestor,
		classify:  classify,
		logger:    logger,
	}
}

// Handler wires the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/scan/feeds", s.authorized(s.scanHandler([]string{"feed"}), true))
	mux.HandleFunc("/scan/videos", s.authorized(s.scanHandler([]string{"youtube"}), false))
	mux.HandleFunc("/scan/social", s.authorized(s.scanHandler([]string{"social_search", "social_handles"}), false))
	mux.HandleFunc("/classify", s.authorized(s.classifyHandler, false))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return mux
}

// authorized enforces the shared-secret bearer token. One feed-scan endpoint
// may be exercised from a browser for manual testing; that request is
// detected heuristically and allowed through without the token.
func (s *Server) authorized(next http.HandlerFunc, allowBrowser bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if allowBrowser && looksLikeBrowser(r) {
			next(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if s.authToken == "" || !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}

		next(w, r)
	}
}

func looksLikeBrowser(r *http.Request) bool {
	return strings.Contains(r.Header.Get("User-Agent"), "Mozilla") &&
		strings.Contains(r.Header.Get("Accept"), "text/html")
}

func (s *Server) scanHandler(kinds []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.deadline)
		defer cancel()

		started := time.Now()
		report, err := s.ingestor.Run(ctx, kinds, started)
		if err != nil {
			if s.logger != nil {
				s.logger.Error("scan invocation failed", "kinds", kinds, "error", err)
			}
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}

		if s.logger != nil {
			s.logger.Info("scan completed", "kinds", kinds,
				"scanned", report.SourcesScanned, "inserted", report.ItemsInserted,
				"elapsed", time.Since(started).Round(time.Millisecond))
		}
		writeJSON(w, http.StatusOK, report)
	}
}

func (s *Server) classifyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.deadline)
	defer cancel()

	report, err := s.classify.Run(ctx)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("classify invocation failed", "error", err)
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, report)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
