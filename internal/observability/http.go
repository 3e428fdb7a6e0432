// Copyright (c) 2026 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Transfer License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package observability

import (
	"encoding/json"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/nishisan-dev/n-transfer/internal/config"
)

// startTime registra quando o processo iniciou (para cálculo de uptime).
var startTime = time.Now()

// Version é preenchida via ldflags no build (-X ...Version=x.y.z).
var Version = "dev"

// HandlerMetrics define a interface read-only que o router precisa do relay.
// Isso desacopla o pacote observability do relay sem expor o Server inteiro.
type HandlerMetrics interface {
	MetricsSnapshot() MetricsData
}

// MetricsData contém os contadores coletados do relay.
type MetricsData struct {
	UptimeSeconds       int64
	ActiveSenders       int32
	ActiveRecipients    int32
	RegistryEntries     int
	TransfersRegistered int64
	TransfersCompleted  int64
	TransfersCancelled  int64
	TransfersFailed     int64
	Reconnects          int64
	BytesRelayed        int64
	StagedUploads       int64
	StagedBytes         int64
	StagedDownloads     int64
	StagedExpired       int64
}

// NewRouter cria o http.Handler da API de observabilidade.
// Aplica middleware ACL em todas as rotas. monitor e events aceitam nil
// (os campos correspondentes ficam zerados ou vazios).
func NewRouter(metrics HandlerMetrics, monitor *SystemMonitor, events *EventStore, cfg *config.RelayConfig, acl *ACL) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/health", handleHealth)
	mux.HandleFunc("GET /api/v1/metrics", makeMetricsHandler(metrics, monitor))
	mux.HandleFunc("GET /api/v1/events", makeEventsHandler(events))
	mux.HandleFunc("GET /api/v1/config", makeConfigHandler(cfg))

	// Raiz placeholder: a API é o produto aqui, não uma SPA.
	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<!DOCTYPE html><html><head><title>N-Transfer Observability</title></head><body><h1>N-Transfer Relay</h1><p>See /api/v1/health, /api/v1/metrics, /api/v1/events and /api/v1/config.</p></body></html>`))
	})

	return acl.Middleware(mux)
}

// handleHealth retorna status do processo, uptime e versão.
func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Uptime:  time.Since(startTime).String(),
		Version: Version,
		Go:      runtime.Version(),
	})
}

// makeMetricsHandler combina o snapshot do relay com a leitura do monitor.
func makeMetricsHandler(metrics HandlerMetrics, monitor *SystemMonitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data := metrics.MetricsSnapshot()
		resp := MetricsResponse{
			UptimeSeconds:       data.UptimeSeconds,
			ActiveSenders:       data.ActiveSenders,
			ActiveRecipients:    data.ActiveRecipients,
			RegistryEntries:     data.RegistryEntries,
			TransfersRegistered: data.TransfersRegistered,
			TransfersCompleted:  data.TransfersCompleted,
			TransfersCancelled:  data.TransfersCancelled,
			TransfersFailed:     data.TransfersFailed,
			Reconnects:          data.Reconnects,
			BytesRelayed:        data.BytesRelayed,
			StagedUploads:       data.StagedUploads,
			StagedBytes:         data.StagedBytes,
			StagedDownloads:     data.StagedDownloads,
			StagedExpired:       data.StagedExpired,
		}
		if monitor != nil {
			stats := monitor.Stats()
			resp.CPUPercent = stats.CPUPercent
			resp.MemoryPercent = stats.MemoryPercent
			resp.DiskUsagePercent = stats.DiskUsagePercent
			resp.LoadAverage = stats.LoadAverage
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// makeEventsHandler serve os eventos recentes; ?limit=N restringe a cauda.
func makeEventsHandler(events *EventStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if events == nil {
			writeJSON(w, http.StatusOK, []EventEntry{})
			return
		}
		limit := 0
		if v := r.URL.Query().Get("limit"); v != "" {
			limit, _ = strconv.Atoi(v)
		}
		writeJSON(w, http.StatusOK, events.Recent(limit))
	}
}

// makeConfigHandler expõe a visão segura da configuração corrente.
func makeConfigHandler(cfg *config.RelayConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := ConfigResponse{
			ServerListen:      cfg.Server.Listen,
			KeepaliveInterval: cfg.Relay.KeepaliveInterval.String(),
			ReconnectWindow:   cfg.Relay.ReconnectWindow.String(),
			StagingEnabled:    cfg.Staging.Enabled,
			LogLevel:          cfg.Logging.Level,
			LogFormat:         cfg.Logging.Format,
		}
		if cfg.Staging.Enabled {
			resp.StagingStore = cfg.Staging.Store
			resp.StagingTTL = cfg.Staging.TTL.String()
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// writeJSON serializa v como JSON e envia com status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}
