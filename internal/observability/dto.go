// Copyright (c) 2026 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Transfer License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package observability

// HealthResponse é retornado por GET /api/v1/health.
type HealthResponse struct {
	Status  string `json:"status"`
	Uptime  string `json:"uptime"`
	Version string `json:"version"`
	Go      string `json:"go"`
}

// MetricsResponse é retornado por GET /api/v1/metrics: contadores do relay
// mais a leitura corrente do SystemMonitor.
type MetricsResponse struct {
	UptimeSeconds       int64 `json:"uptime_seconds"`
	ActiveSenders       int32 `json:"active_senders"`
	ActiveRecipients    int32 `json:"active_recipients"`
	RegistryEntries     int   `json:"registry_entries"`
	TransfersRegistered int64 `json:"transfers_registered"`
	TransfersCompleted  int64 `json:"transfers_completed"`
	TransfersCancelled  int64 `json:"transfers_cancelled"`
	TransfersFailed     int64 `json:"transfers_failed"`
	Reconnects          int64 `json:"reconnects"`
	BytesRelayed        int64 `json:"bytes_relayed"`

	// Contadores de staging; só aparecem com o modo habilitado.
	StagedUploads   int64 `json:"staged_uploads,omitempty"`
	StagedBytes     int64 `json:"staged_bytes,omitempty"`
	StagedDownloads int64 `json:"staged_downloads,omitempty"`
	StagedExpired   int64 `json:"staged_expired,omitempty"`

	CPUPercent       float64 `json:"cpu_percent"`
	MemoryPercent    float64 `json:"memory_percent"`
	DiskUsagePercent float64 `json:"disk_usage_percent"`
	LoadAverage      float64 `json:"load_average"`
}

// EventEntry representa um evento operacional no ring buffer.
type EventEntry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"` // info | warn | error
	Type      string `json:"type"`  // transfer_registered | reconnect | transfer_cancelled | staged_upload | ...
	Transfer  string `json:"transfer,omitempty"`
	Message   string `json:"message"`
}

// ConfigResponse é a visão segura da configuração em GET /api/v1/config.
// Nunca expõe credenciais nem paths internos.
type ConfigResponse struct {
	ServerListen      string `json:"server_listen"`
	KeepaliveInterval string `json:"keepalive_interval"`
	ReconnectWindow   string `json:"reconnect_window"`
	StagingEnabled    bool   `json:"staging_enabled"`
	StagingStore      string `json:"staging_store,omitempty"`
	StagingTTL        string `json:"staging_ttl,omitempty"`
	LogLevel          string `json:"log_level"`
	LogFormat         string `json:"log_format"`
}
