package main

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"msb/core/state"
)

// ledgerStatus is the /healthz body.
type ledgerStatus struct {
	Instance     string `json:"instance"`
	Writer       string `json:"writer"`
	Writable     bool   `json:"writable"`
	Indexer      bool   `json:"indexer"`
	SignedLength uint64 `json:"signedLength"`
}

// opsRouter serves Prometheus metrics and a liveness probe. It exposes no
// ledger reads or writes.
func opsRouter(st *state.State, instance string) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		local := st.LocalKey()
		status := ledgerStatus{
			Instance:     instance,
			Writer:       hex.EncodeToString(local[:]),
			Writable:     st.IsWritable(),
			Indexer:      st.IsIndexer(),
			SignedLength: st.SignedLength(),
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(status)
	})
	return otelhttp.NewHandler(r, "msbd.ops")
}

func startOps(addr string, handler http.Handler, logger *slog.Logger) *http.Server {
	addr = strings.TrimSpace(addr)
	if addr == "" || strings.EqualFold(addr, "off") {
		return nil
	}
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("ops endpoint listening", slog.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("ops server failed", slog.Any("error", err))
		}
	}()
	return server
}
