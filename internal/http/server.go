// Package http is the JSON API over the ledger: registration and login,
// transactions, balance and summary, recurrence rules, and infra endpoints.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"tally/internal/auth"
	"tally/internal/cache"
	"tally/internal/core"
	"tally/internal/middleware/ratelimit"
	"tally/internal/middleware/trace"
	"tally/internal/services"
)

type Server struct {
	http.Server

	credentials *auth.Service
	ledger      *services.LedgerService
	catchup     *services.CatchupProcessor
	session     *auth.Session
	jwtSecret   []byte
	tokenExpiry time.Duration

	tracer      *trace.Middleware
	rateLimiter *ratelimit.Limiter

	// Balance and summary answers are cheap to recompute but read far more
	// often than written; cached per user, invalidated on every write.
	balanceCache *cache.LRUCache[core.Money]
	summaryCache *cache.LRUCache[[]core.CategoryAmount]

	stopCacheCleanup chan struct{}
	shutdownOnce     sync.Once
}

func NewServer(addr string, credentials *auth.Service, ledger *services.LedgerService, catchup *services.CatchupProcessor, jwtSecret []byte, tokenExpiry time.Duration) *Server {
	mux := http.NewServeMux()

	s := &Server{
		credentials:      credentials,
		ledger:           ledger,
		catchup:          catchup,
		session:          auth.NewSession(),
		jwtSecret:        jwtSecret,
		tokenExpiry:      tokenExpiry,
		tracer:           trace.NewMiddleware(extractClientIP),
		rateLimiter:      ratelimit.NewLimiter(ratelimit.DefaultConfig()),
		balanceCache:     cache.NewLRUCache[core.Money](500, 5*time.Minute),
		summaryCache:     cache.NewLRUCache[[]core.CategoryAmount](500, 5*time.Minute),
		stopCacheCleanup: make(chan struct{}),
	}

	go s.startCacheCleanup()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("POST /api/register", s.handleRegister)
	mux.HandleFunc("POST /api/login", s.handleLogin)
	mux.HandleFunc("POST /api/logout", s.requireAuth(s.handleLogout))

	mux.HandleFunc("GET /api/transactions", s.requireAuth(s.handleListTransactions))
	mux.HandleFunc("POST /api/transactions", s.requireAuth(s.handleAppendTransaction))
	mux.HandleFunc("DELETE /api/transactions", s.requireAuth(s.handleClearTransactions))
	mux.HandleFunc("GET /api/balance", s.requireAuth(s.handleBalance))
	mux.HandleFunc("GET /api/summary", s.requireAuth(s.handleSummary))
	mux.HandleFunc("GET /api/summary/chart.png", s.requireAuth(s.handleSummaryChart))
	mux.HandleFunc("GET /api/recurring", s.requireAuth(s.handleListRules))
	mux.HandleFunc("POST /api/recurring", s.requireAuth(s.handleCreateRule))
	mux.HandleFunc("GET /api/categories", s.requireAuth(s.handleCategories))

	handler := s.tracer.Middleware(s.rateLimiter.Middleware(extractClientIP)(mux))
	s.Server = http.Server{
		Addr:    addr,
		Handler: handler,
	}

	return s
}

// extractClientIP honors proxy headers before falling back to the socket peer.
func extractClientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		if comma := strings.IndexByte(ip, ','); comma >= 0 {
			ip = ip[:comma]
		}
		return strings.TrimSpace(ip)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	return r.RemoteAddr
}

func (s *Server) startCacheCleanup() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			removed := s.balanceCache.CleanExpired() + s.summaryCache.CleanExpired()
			if removed > 0 {
				slog.Debug("Cache cleanup completed", "entries_removed", removed)
			}
		case <-s.stopCacheCleanup:
			return
		}
	}
}

// invalidateCaches drops the user's cached reads after a ledger write.
func (s *Server) invalidateCaches(userID string) {
	s.balanceCache.Delete(userID)
	s.summaryCache.Delete(userID)
}

// Shutdown stops background goroutines and then the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		close(s.stopCacheCleanup)
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
