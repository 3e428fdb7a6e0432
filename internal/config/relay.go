// Copyright (c) 2026 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Transfer License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package config carrega e valida a configuração YAML do ntransfer-relay.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// RelayConfig representa a configuração completa do ntransfer-relay.
type RelayConfig struct {
	Server         ServerListen        `yaml:"server"`
	Relay          RelaySettings       `yaml:"relay"`
	Staging        StagingConfig       `yaml:"staging"`
	Logging        LoggingInfo         `yaml:"logging"`
	Observability  ObservabilityConfig `yaml:"observability"`
	TransferLogDir string              `yaml:"transfer_log_dir"` // vazio = sem logs por transfer
}

// ServerListen contém o endereço de escuta do relay.
type ServerListen struct {
	Listen string `yaml:"listen"`

	// DSCP marca o tráfego aceito pelo relay com o code point dado
	// (ex: "CS1" para classe scavenger). Vazio desliga a marcação.
	// O nome é validado na subida do relay.
	DSCP string `yaml:"dscp"`
}

// RelaySettings ajusta o comportamento do rendezvous/streaming.
type RelaySettings struct {
	// KeepaliveInterval é a cadência de ping para senders em espera (default: 15s).
	KeepaliveInterval time.Duration `yaml:"keepalive_interval"`
	// ReconnectWindow é a janela absoluta para o recipient reconectar após
	// cair no meio do stream (default: 30s). Vencida a janela, o transfer
	// é cancelado.
	ReconnectWindow time.Duration `yaml:"reconnect_window"`
}

// StagingConfig configura o modo staging (upload em chunks + download HTTP).
type StagingConfig struct {
	Enabled bool          `yaml:"enabled"`
	TTL     time.Duration `yaml:"ttl"`   // default: 24h
	Store   string        `yaml:"store"` // disk|s3 (default: disk)
	BaseDir string        `yaml:"base_dir"`

	// DownloadRateLimit limita a taxa por download ("10mb" = 10 MB/s).
	// "0" ou vazio = ilimitado.
	DownloadRateLimit string `yaml:"download_rate_limit"`
	DownloadRateRaw   int64  `yaml:"-"`

	S3 S3Config `yaml:"s3"`
}

// S3Config aponta para o bucket usado quando staging.store = s3.
// Endpoint não-vazio força path-style (MinIO e compatíveis).
type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"` // default: "ntransfer/"
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// LoggingInfo contém configurações de logging.
type LoggingInfo struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"` // vazio = apenas stdout
}

// ObservabilityConfig configura o listener HTTP de observabilidade.
type ObservabilityConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Listen       string        `yaml:"listen"`        // default: "127.0.0.1:9851"
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // default: 5s
	WriteTimeout time.Duration `yaml:"write_timeout"` // default: 15s
	IdleTimeout  time.Duration `yaml:"idle_timeout"`  // default: 60s
	AllowOrigins []string      `yaml:"allow_origins"` // IP ou CIDR (deny-by-default)

	// Persistência de eventos operacionais
	EventsFile     string `yaml:"events_file"`      // default: "events.jsonl"
	EventsMaxLines int    `yaml:"events_max_lines"` // default: 10000

	// ParsedCIDRs é preenchido em validate(); não vem do YAML.
	ParsedCIDRs []*net.IPNet `yaml:"-"`
}

// LoadRelayConfig lê e valida o arquivo YAML de configuração do relay.
func LoadRelayConfig(path string) (*RelayConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading relay config: %w", err)
	}

	var cfg RelayConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing relay config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating relay config: %w", err)
	}

	return &cfg, nil
}

func (c *RelayConfig) validate() error {
	if c.Server.Listen == "" {
		return fmt.Errorf("server.listen is required")
	}

	// Relay defaults
	if c.Relay.KeepaliveInterval == 0 {
		c.Relay.KeepaliveInterval = 15 * time.Second
	}
	if c.Relay.KeepaliveInterval < time.Second {
		return fmt.Errorf("relay.keepalive_interval must be at least 1s, got %s", c.Relay.KeepaliveInterval)
	}
	if c.Relay.ReconnectWindow == 0 {
		c.Relay.ReconnectWindow = 30 * time.Second
	}
	if c.Relay.ReconnectWindow < 5*time.Second {
		return fmt.Errorf("relay.reconnect_window must be at least 5s, got %s", c.Relay.ReconnectWindow)
	}

	// Staging defaults e validação
	if c.Staging.Enabled {
		if c.Staging.TTL <= 0 {
			c.Staging.TTL = 24 * time.Hour
		}
		if c.Staging.Store == "" {
			c.Staging.Store = "disk"
		}
		c.Staging.Store = strings.ToLower(strings.TrimSpace(c.Staging.Store))
		switch c.Staging.Store {
		case "disk":
			if c.Staging.BaseDir == "" {
				return fmt.Errorf("staging.base_dir is required when staging.store is disk")
			}
		case "s3":
			if c.Staging.S3.Bucket == "" {
				return fmt.Errorf("staging.s3.bucket is required when staging.store is s3")
			}
			if c.Staging.S3.Region == "" && c.Staging.S3.Endpoint == "" {
				return fmt.Errorf("staging.s3.region (or a custom endpoint) is required when staging.store is s3")
			}
			if c.Staging.S3.Prefix == "" {
				c.Staging.S3.Prefix = "ntransfer/"
			}
		default:
			return fmt.Errorf("staging.store must be disk or s3, got %q", c.Staging.Store)
		}

		if c.Staging.DownloadRateLimit == "" {
			c.Staging.DownloadRateLimit = "0"
		}
		parsed, err := ParseByteSize(c.Staging.DownloadRateLimit)
		if err != nil {
			return fmt.Errorf("staging.download_rate_limit: %w", err)
		}
		if parsed < 0 {
			return fmt.Errorf("staging.download_rate_limit must be >= 0, got %s", c.Staging.DownloadRateLimit)
		}
		c.Staging.DownloadRateRaw = parsed
	}

	// Logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	// Observability defaults e validação
	if c.Observability.Enabled {
		if c.Observability.Listen == "" {
			c.Observability.Listen = "127.0.0.1:9851"
		}
		if c.Observability.ReadTimeout <= 0 {
			c.Observability.ReadTimeout = 5 * time.Second
		}
		if c.Observability.WriteTimeout <= 0 {
			c.Observability.WriteTimeout = 15 * time.Second
		}
		if c.Observability.IdleTimeout <= 0 {
			c.Observability.IdleTimeout = 60 * time.Second
		}
		if c.Observability.EventsFile == "" {
			c.Observability.EventsFile = "events.jsonl"
		}
		if c.Observability.EventsMaxLines <= 0 {
			c.Observability.EventsMaxLines = 10000
		}
		if len(c.Observability.AllowOrigins) == 0 {
			return fmt.Errorf("observability.allow_origins is required when observability is enabled (deny-by-default)")
		}
		for _, origin := range c.Observability.AllowOrigins {
			_, cidr, err := net.ParseCIDR(origin)
			if err != nil {
				// Tenta como IP único → converte para /32 ou /128
				ip := net.ParseIP(strings.TrimSpace(origin))
				if ip == nil {
					return fmt.Errorf("observability.allow_origins: %q is not a valid IP or CIDR", origin)
				}
				if ip.To4() != nil {
					_, cidr, _ = net.ParseCIDR(ip.String() + "/32")
				} else {
					_, cidr, _ = net.ParseCIDR(ip.String() + "/128")
				}
			}
			c.Observability.ParsedCIDRs = append(c.Observability.ParsedCIDRs, cidr)
		}
	}

	return nil
}

// ParseByteSize converte strings human-readable como "256mb", "1gb" para bytes.
func ParseByteSize(s string) (int64, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, fmt.Errorf("empty size string")
	}

	// Ordenado do sufixo mais longo para o mais curto
	// para evitar que "mb" matche como "b"
	type suffix struct {
		s string
		m int64
	}
	suffixes := []suffix{
		{"gb", 1024 * 1024 * 1024},
		{"mb", 1024 * 1024},
		{"kb", 1024},
		{"b", 1},
	}

	for _, sfx := range suffixes {
		if strings.HasSuffix(s, sfx.s) {
			numStr := strings.TrimSuffix(s, sfx.s)
			num, err := strconv.ParseInt(numStr, 10, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid number %q: %w", numStr, err)
			}
			return num * sfx.m, nil
		}
	}

	// Tenta interpretar como número puro (bytes)
	num, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("unknown size format %q", s)
	}
	return num, nil
}
