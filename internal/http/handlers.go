package http

import (
	"fmt"
	"net/http"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// handleMetrics exposes request counters in Prometheus text format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	m := s.tracer.GetMetrics()
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	fmt.Fprintf(w, "# HELP tally_http_requests_total Total HTTP requests served.\n")
	fmt.Fprintf(w, "# TYPE tally_http_requests_total counter\n")
	fmt.Fprintf(w, "tally_http_requests_total %d\n", m.TotalRequests)
	fmt.Fprintf(w, "# HELP tally_http_last_response_micros Duration of the last response in microseconds.\n")
	fmt.Fprintf(w, "# TYPE tally_http_last_response_micros gauge\n")
	fmt.Fprintf(w, "tally_http_last_response_micros %d\n", m.LastResponseMicros)
	fmt.Fprintf(w, "# HELP tally_http_rate_limited_total Requests rejected by the rate limiter.\n")
	fmt.Fprintf(w, "# TYPE tally_http_rate_limited_total counter\n")
	fmt.Fprintf(w, "tally_http_rate_limited_total %d\n", s.rateLimiter.LimitedRequests())
	fmt.Fprintf(w, "# HELP tally_http_rate_limit_clients Currently tracked rate limit clients.\n")
	fmt.Fprintf(w, "# TYPE tally_http_rate_limit_clients gauge\n")
	fmt.Fprintf(w, "tally_http_rate_limit_clients %d\n", s.rateLimiter.ActiveClients())
}
