// Copyright (c) 2026 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Transfer License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// ===== Helpers =====

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "relay.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}
	return path
}

// ===== RelayConfig =====

// TestLoadRelayConfigFull valida o carregamento de uma configuração completa.
func TestLoadRelayConfigFull(t *testing.T) {
	path := writeTempConfig(t, `
server:
  listen: "0.0.0.0:9850"
relay:
  keepalive_interval: 10s
  reconnect_window: 45s
transfer_log_dir: "/var/log/ntransfer"
staging:
  enabled: true
  ttl: 2h
  store: disk
  base_dir: "/var/lib/ntransfer/staging"
  download_rate_limit: "10mb"
logging:
  level: debug
  format: text
  file: "/var/log/ntransfer/relay.log"
observability:
  enabled: true
  listen: "127.0.0.1:9851"
  allow_origins:
    - "127.0.0.1"
    - "10.0.0.0/8"
`)

	cfg, err := LoadRelayConfig(path)
	if err != nil {
		t.Fatalf("LoadRelayConfig: %v", err)
	}

	if cfg.Server.Listen != "0.0.0.0:9850" {
		t.Errorf("Server.Listen = %q, want 0.0.0.0:9850", cfg.Server.Listen)
	}
	if cfg.Relay.KeepaliveInterval != 10*time.Second {
		t.Errorf("KeepaliveInterval = %s, want 10s", cfg.Relay.KeepaliveInterval)
	}
	if cfg.Relay.ReconnectWindow != 45*time.Second {
		t.Errorf("ReconnectWindow = %s, want 45s", cfg.Relay.ReconnectWindow)
	}
	if cfg.TransferLogDir != "/var/log/ntransfer" {
		t.Errorf("TransferLogDir = %q, want /var/log/ntransfer", cfg.TransferLogDir)
	}
	if !cfg.Staging.Enabled {
		t.Error("Staging.Enabled should be true")
	}
	if cfg.Staging.TTL != 2*time.Hour {
		t.Errorf("Staging.TTL = %s, want 2h", cfg.Staging.TTL)
	}
	if cfg.Staging.DownloadRateRaw != 10*1024*1024 {
		t.Errorf("DownloadRateRaw = %d, want %d", cfg.Staging.DownloadRateRaw, 10*1024*1024)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "text" {
		t.Errorf("Logging = %+v, want debug/text", cfg.Logging)
	}
	if len(cfg.Observability.ParsedCIDRs) != 2 {
		t.Fatalf("ParsedCIDRs has %d entries, want 2", len(cfg.Observability.ParsedCIDRs))
	}
	if got := cfg.Observability.ParsedCIDRs[0].String(); got != "127.0.0.1/32" {
		t.Errorf("ParsedCIDRs[0] = %q, want 127.0.0.1/32", got)
	}
	if got := cfg.Observability.ParsedCIDRs[1].String(); got != "10.0.0.0/8" {
		t.Errorf("ParsedCIDRs[1] = %q, want 10.0.0.0/8", got)
	}
}

// TestLoadRelayConfigDefaults verifica que valores omitidos recebem defaults.
func TestLoadRelayConfigDefaults(t *testing.T) {
	path := writeTempConfig(t, `
server:
  listen: ":9850"
`)

	cfg, err := LoadRelayConfig(path)
	if err != nil {
		t.Fatalf("LoadRelayConfig: %v", err)
	}

	if cfg.Relay.KeepaliveInterval != 15*time.Second {
		t.Errorf("default KeepaliveInterval = %s, want 15s", cfg.Relay.KeepaliveInterval)
	}
	if cfg.Relay.ReconnectWindow != 30*time.Second {
		t.Errorf("default ReconnectWindow = %s, want 30s", cfg.Relay.ReconnectWindow)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("default Logging.Level = %q, want info", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("default Logging.Format = %q, want json", cfg.Logging.Format)
	}
	if cfg.Staging.Enabled {
		t.Error("Staging should be disabled by default")
	}
	if cfg.Observability.Enabled {
		t.Error("Observability should be disabled by default")
	}
}

// TestLoadRelayConfigStagingDefaults verifica defaults específicos do staging.
func TestLoadRelayConfigStagingDefaults(t *testing.T) {
	path := writeTempConfig(t, `
server:
  listen: ":9850"
staging:
  enabled: true
  base_dir: "/tmp/staging"
`)

	cfg, err := LoadRelayConfig(path)
	if err != nil {
		t.Fatalf("LoadRelayConfig: %v", err)
	}

	if cfg.Staging.Store != "disk" {
		t.Errorf("default Staging.Store = %q, want disk", cfg.Staging.Store)
	}
	if cfg.Staging.TTL != 24*time.Hour {
		t.Errorf("default Staging.TTL = %s, want 24h", cfg.Staging.TTL)
	}
	if cfg.Staging.DownloadRateRaw != 0 {
		t.Errorf("default DownloadRateRaw = %d, want 0 (unlimited)", cfg.Staging.DownloadRateRaw)
	}
}

// TestLoadRelayConfigMissingListen garante que server.listen é obrigatório.
func TestLoadRelayConfigMissingListen(t *testing.T) {
	path := writeTempConfig(t, `
logging:
  level: info
`)

	_, err := LoadRelayConfig(path)
	if err == nil {
		t.Fatal("expected error for missing server.listen")
	}
	if !strings.Contains(err.Error(), "server.listen") {
		t.Errorf("error should mention server.listen, got: %v", err)
	}
}

// TestLoadRelayConfigStagingDiskRequiresBaseDir valida a exigência de base_dir.
func TestLoadRelayConfigStagingDiskRequiresBaseDir(t *testing.T) {
	path := writeTempConfig(t, `
server:
  listen: ":9850"
staging:
  enabled: true
  store: disk
`)

	_, err := LoadRelayConfig(path)
	if err == nil {
		t.Fatal("expected error for missing staging.base_dir")
	}
	if !strings.Contains(err.Error(), "base_dir") {
		t.Errorf("error should mention base_dir, got: %v", err)
	}
}

// TestLoadRelayConfigStagingS3RequiresBucket valida a exigência de bucket.
func TestLoadRelayConfigStagingS3RequiresBucket(t *testing.T) {
	path := writeTempConfig(t, `
server:
  listen: ":9850"
staging:
  enabled: true
  store: s3
  s3:
    region: us-east-1
`)

	_, err := LoadRelayConfig(path)
	if err == nil {
		t.Fatal("expected error for missing staging.s3.bucket")
	}
	if !strings.Contains(err.Error(), "bucket") {
		t.Errorf("error should mention bucket, got: %v", err)
	}
}

// TestLoadRelayConfigStagingS3PrefixDefault verifica o prefix default do S3.
func TestLoadRelayConfigStagingS3PrefixDefault(t *testing.T) {
	path := writeTempConfig(t, `
server:
  listen: ":9850"
staging:
  enabled: true
  store: s3
  s3:
    bucket: my-bucket
    region: us-east-1
`)

	cfg, err := LoadRelayConfig(path)
	if err != nil {
		t.Fatalf("LoadRelayConfig: %v", err)
	}
	if cfg.Staging.S3.Prefix != "ntransfer/" {
		t.Errorf("default S3.Prefix = %q, want ntransfer/", cfg.Staging.S3.Prefix)
	}
}

// TestLoadRelayConfigInvalidStore rejeita valores de store desconhecidos.
func TestLoadRelayConfigInvalidStore(t *testing.T) {
	path := writeTempConfig(t, `
server:
  listen: ":9850"
staging:
  enabled: true
  store: ftp
  base_dir: "/tmp/x"
`)

	_, err := LoadRelayConfig(path)
	if err == nil {
		t.Fatal("expected error for store=ftp")
	}
}

// TestLoadRelayConfigKeepaliveTooSmall rejeita keepalive abaixo de 1s.
func TestLoadRelayConfigKeepaliveTooSmall(t *testing.T) {
	path := writeTempConfig(t, `
server:
  listen: ":9850"
relay:
  keepalive_interval: 200ms
`)

	_, err := LoadRelayConfig(path)
	if err == nil {
		t.Fatal("expected error for keepalive_interval below 1s")
	}
}

// TestLoadRelayConfigObservabilityRequiresOrigins garante deny-by-default.
func TestLoadRelayConfigObservabilityRequiresOrigins(t *testing.T) {
	path := writeTempConfig(t, `
server:
  listen: ":9850"
observability:
  enabled: true
`)

	_, err := LoadRelayConfig(path)
	if err == nil {
		t.Fatal("expected error for observability without allow_origins")
	}
	if !strings.Contains(err.Error(), "allow_origins") {
		t.Errorf("error should mention allow_origins, got: %v", err)
	}
}

// TestLoadRelayConfigObservabilityDefaults verifica defaults do listener.
func TestLoadRelayConfigObservabilityDefaults(t *testing.T) {
	path := writeTempConfig(t, `
server:
  listen: ":9850"
observability:
  enabled: true
  allow_origins:
    - "127.0.0.1"
`)

	cfg, err := LoadRelayConfig(path)
	if err != nil {
		t.Fatalf("LoadRelayConfig: %v", err)
	}
	if cfg.Observability.Listen != "127.0.0.1:9851" {
		t.Errorf("default Observability.Listen = %q, want 127.0.0.1:9851", cfg.Observability.Listen)
	}
	if cfg.Observability.ReadTimeout != 5*time.Second {
		t.Errorf("default ReadTimeout = %s, want 5s", cfg.Observability.ReadTimeout)
	}
	if cfg.Observability.EventsFile != "events.jsonl" {
		t.Errorf("default EventsFile = %q, want events.jsonl", cfg.Observability.EventsFile)
	}
	if cfg.Observability.EventsMaxLines != 10000 {
		t.Errorf("default EventsMaxLines = %d, want 10000", cfg.Observability.EventsMaxLines)
	}
}

// TestLoadRelayConfigBadOrigin rejeita origens que não são IP nem CIDR.
func TestLoadRelayConfigBadOrigin(t *testing.T) {
	path := writeTempConfig(t, `
server:
  listen: ":9850"
observability:
  enabled: true
  allow_origins:
    - "not-an-ip"
`)

	_, err := LoadRelayConfig(path)
	if err == nil {
		t.Fatal("expected error for invalid origin")
	}
}

// TestLoadRelayConfigMissingFile retorna erro para arquivo inexistente.
func TestLoadRelayConfigMissingFile(t *testing.T) {
	_, err := LoadRelayConfig("/nonexistent/relay.yaml")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

// TestLoadRelayConfigExampleFile garante que o exemplo distribuído é válido.
func TestLoadRelayConfigExampleFile(t *testing.T) {
	cfg, err := LoadRelayConfig("../../configs/relay.example.yaml")
	if err != nil {
		t.Fatalf("example config should load: %v", err)
	}
	if cfg.Server.Listen == "" {
		t.Error("example config should set server.listen")
	}
}

// ===== ParseByteSize =====

func TestParseByteSize(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"1gb", 1024 * 1024 * 1024},
		{"256mb", 256 * 1024 * 1024},
		{"64kb", 64 * 1024},
		{"512b", 512},
		{"1024", 1024},
		{"0", 0},
		{" 10MB ", 10 * 1024 * 1024},
	}

	for _, tc := range cases {
		got, err := ParseByteSize(tc.in)
		if err != nil {
			t.Errorf("ParseByteSize(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseByteSize(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestParseByteSizeInvalid(t *testing.T) {
	for _, in := range []string{"", "abc", "10xb", "mb"} {
		if _, err := ParseByteSize(in); err == nil {
			t.Errorf("ParseByteSize(%q): expected error", in)
		}
	}
}
