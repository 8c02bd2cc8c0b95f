// Package http exposes the statement engine over a small JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"balancete/internal/core"
	"balancete/internal/ingest"
	"balancete/internal/ledger"
	"balancete/internal/middleware/trace"
	"balancete/internal/statement"
)

// EntryStore is the mutable side of the ledger used by the API. Entry
// is needed after a detail edit to find the period the edit touched.
type EntryStore interface {
	InsertEntry(ctx context.Context, e core.LedgerEntry) error
	UpdateEntryDetail(ctx context.Context, id, detail string) error
	Entry(ctx context.Context, id string) (core.LedgerEntry, error)
}

// EventPublisher announces a ledger change to the archive worker.
// Nil disables event publication; recomputation still happens locally.
type EventPublisher interface {
	PublishLedgerChanged(ctx context.Context, entryID string, date core.Date) error
}

type Server struct {
	http.Server

	recomputer *statement.Recomputer
	builder    *statement.Builder
	agg        *ledger.Aggregator
	entries    EntryStore
	importer   *ingest.Importer
	events     EventPublisher

	rateLimiter  *rateLimiter
	shutdownOnce sync.Once
}

// Simple in-memory rate limiter
type rateLimiter struct {
	mu           sync.Mutex
	clients      map[string]*clientInfo
	stopCleanup  chan struct{}
	shutdownOnce sync.Once
}

type clientInfo struct {
	lastRequest time.Time
	requests    int
}

func newRateLimiter() *rateLimiter {
	rl := &rateLimiter{
		clients:     make(map[string]*clientInfo),
		stopCleanup: make(chan struct{}),
	}
	go rl.startCleanup()
	return rl
}

// startCleanup runs periodic cleanup to remove stale client entries
func (rl *rateLimiter) startCleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanupStaleEntries()
		case <-rl.stopCleanup:
			return
		}
	}
}

// cleanupStaleEntries removes client entries older than 10 minutes
func (rl *rateLimiter) cleanupStaleEntries() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-10 * time.Minute)
	for ip, client := range rl.clients {
		if client.lastRequest.Before(cutoff) {
			delete(rl.clients, ip)
		}
	}
}

// stop gracefully shuts down the rate limiter cleanup goroutine
func (rl *rateLimiter) stop() {
	rl.shutdownOnce.Do(func() {
		if rl.stopCleanup != nil {
			close(rl.stopCleanup)
		}
	})
}

func (rl *rateLimiter) allow(clientIP string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	client, exists := rl.clients[clientIP]

	if !exists {
		rl.clients[clientIP] = &clientInfo{
			lastRequest: now,
			requests:    1,
		}
		return true
	}

	// Reset counter if more than 1 minute has passed
	if now.Sub(client.lastRequest) > time.Minute {
		client.requests = 1
		client.lastRequest = now
		return true
	}

	// Allow up to 60 requests per minute
	client.requests++
	client.lastRequest = now

	return client.requests <= 60
}

// NewServer configures routes and returns a ready-to-run server.
func NewServer(addr string, rec *statement.Recomputer, b *statement.Builder, agg *ledger.Aggregator, entries EntryStore, importer *ingest.Importer, events EventPublisher) *Server {
	mux := http.NewServeMux()

	s := &Server{
		recomputer:  rec,
		builder:     b,
		agg:         agg,
		entries:     entries,
		importer:    importer,
		events:      events,
		rateLimiter: newRateLimiter(),
	}

	mux.HandleFunc("/healthz", handleHealth)
	mux.HandleFunc("/readyz", handleReady)

	mux.HandleFunc("GET /statements", s.withGuards(s.handleDraftStatement))
	mux.HandleFunc("GET /statements/archived", s.withGuards(s.handleArchivedStatement))
	mux.HandleFunc("POST /statements/archive", s.withGuards(s.handleArchive))
	mux.HandleFunc("GET /breakdown", s.withGuards(s.handleBreakdown))
	mux.HandleFunc("POST /entries", s.withGuards(s.handleCreateEntry))
	mux.HandleFunc("PATCH /entries/{id}/detail", s.withGuards(s.handleUpdateDetail))
	mux.HandleFunc("POST /import", s.withGuards(s.handleImport))

	tm := trace.NewMiddleware()
	s.Server = http.Server{
		Addr:              addr,
		Handler:           tm.Middleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

// withGuards adds security headers and rate limiting for mutating requests
func (s *Server) withGuards(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clientIP := r.Header.Get("X-Forwarded-For")
		if clientIP == "" {
			clientIP = r.Header.Get("X-Real-IP")
		}
		if clientIP == "" {
			clientIP = r.RemoteAddr
		}

		if r.Method != http.MethodGet && !s.rateLimiter.allow(clientIP) {
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		next(w, r)
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
