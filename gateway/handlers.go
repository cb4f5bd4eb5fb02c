// Copyright 2025 ToolGate
// SPDX-License-Identifier: BUSL-1.1

package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"toolgate/platform/events"
	"toolgate/platform/relay"
	"toolgate/platform/shared/types"
)

var (
	promRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toolgate_runs_total",
			Help: "Run requests by final status",
		},
		[]string{"status"},
	)
	promRunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "toolgate_run_duration_seconds",
			Help:    "Run duration from request to terminal event",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(promRunsTotal, promRunDuration)
}

// handleRun executes a run and streams its events to the caller as SSE.
// The relay behind the stream commits usage facts to the ledger regardless
// of how the stream ends.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	identity, err := s.auth.Authenticate(r)
	if err != nil {
		promRunsTotal.WithLabelValues("unauthorized").Inc()
		s.sendError(w, http.StatusUnauthorized, "invalid or missing credentials")
		return
	}

	if err := s.limiter.Allow(r.Context(), identity.BillingAccountID, s.cfg.Auth.RateLimitPerMinute); err != nil {
		promRunsTotal.WithLabelValues("rate_limited").Inc()
		s.log.Warn(identity.BillingAccountID, "", "run request rate limited", nil)
		s.sendError(w, http.StatusTooManyRequests, err.Error())
		return
	}

	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		promRunsTotal.WithLabelValues("bad_request").Inc()
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		promRunsTotal.WithLabelValues("error").Inc()
		s.sendError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	rc := types.RunContext{
		RunID:            uuid.New().String(),
		Attempt:          0,
		IngressRequestID: requestID(r),
		BillingAccountID: identity.BillingAccountID,
		VirtualKeyID:     identity.VirtualKeyID,
		AllowedTools:     identity.AllowedTools,
	}

	s.log.Info(rc.BillingAccountID, rc.RunID, "run started", map[string]interface{}{
		"request_id": rc.IngressRequestID,
		"tool_calls": len(req.ToolCalls),
	})

	src := newRunSource(s.gov, s.pricing, rc, req)
	rel := relay.New(rc, s.ledger, relay.WithLogger(s.log))

	// The run and its ledger commits outlive the client connection. A
	// consumer that disconnects mid-stream stops receiving events; it does
	// not stop the run or its billing.
	rel.Start(context.WithoutCancel(r.Context()), src)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Run-ID", rc.RunID)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	start := time.Now()
	status := "completed"
	for ev := range rel.Events(r.Context()) {
		data, merr := events.Marshal(ev)
		if merr != nil {
			// Unmarshalable events stay internal; the stream continues
			s.log.Error(rc.BillingAccountID, rc.RunID, "failed to marshal event",
				map[string]interface{}{"kind": string(ev.Kind()), "error": merr.Error()})
			continue
		}
		if _, werr := fmt.Fprintf(w, "data: %s\n\n", data); werr != nil {
			status = "client_gone"
			break
		}
		flusher.Flush()

		if _, failed := ev.(events.RunError); failed {
			status = "failed"
		}
	}
	if r.Context().Err() != nil && status == "completed" {
		status = "client_gone"
	}

	promRunsTotal.WithLabelValues(status).Inc()
	promRunDuration.Observe(time.Since(start).Seconds())

	s.log.Info(rc.BillingAccountID, rc.RunID, "run stream closed", map[string]interface{}{
		"request_id": rc.IngressRequestID,
		"status":     status,
	})
}

// handleHealth reports liveness plus ledger store reachability
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	code := http.StatusOK

	if s.pinger != nil {
		if err := s.pinger.Ping(r.Context()); err != nil {
			health["status"] = "degraded"
			health["ledger_store"] = err.Error()
			code = http.StatusServiceUnavailable
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(health)
}

// handleTools lists the registered tool names. The caller's own allowlist
// still governs what it may invoke.
func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	if _, err := s.auth.Authenticate(r); err != nil {
		s.sendError(w, http.StatusUnauthorized, "invalid or missing credentials")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"tools": s.registry.Names(),
	})
}

func (s *Server) sendError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   message,
	})
}

// requestID returns the caller-supplied request id, or generates one
func requestID(r *http.Request) string {
	if rid := r.Header.Get("X-Request-ID"); rid != "" {
		return rid
	}
	return fmt.Sprintf("req_%s", uuid.New().String())
}
