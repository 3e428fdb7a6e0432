// Copyright (c) 2026 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Transfer License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package staging

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/nishisan-dev/n-transfer/internal/config"
)

// sweepTimeout limita cada varredura de expiração. Uma varredura presa
// (store remoto fora do ar) não pode segurar o scheduler para sempre.
const sweepTimeout = 30 * time.Second

// EventSink recebe eventos operacionais do staging. A implementação real
// fica no pacote de observabilidade; aqui basta o contrato.
type EventSink interface {
	PushEvent(level, eventType, transfer, message string)
}

// Service implementa o modo de staging: uploads completos guardados no
// store escolhido e servidos depois por HTTP, com TTL e varredura de
// expirados.
type Service struct {
	cfg    config.StagingConfig
	logger *slog.Logger
	store  ChunkStore
	events EventSink

	uploads   atomic.Int64
	bytes     atomic.Int64
	downloads atomic.Int64
	expired   atomic.Int64
}

// NewService cria o serviço sobre o store já construído pelo chamador.
func NewService(cfg config.StagingConfig, logger *slog.Logger, store ChunkStore) *Service {
	return &Service{
		cfg:    cfg,
		logger: logger.With("component", "staging"),
		store:  store,
	}
}

// SetEventSink liga o destino de eventos. Aceita ser chamado antes de
// qualquer sessão; nil desliga a emissão.
func (s *Service) SetEventSink(sink EventSink) {
	s.events = sink
}

func (s *Service) event(level, eventType, transfer, message string) {
	if s.events == nil {
		return
	}
	s.events.PushEvent(level, eventType, transfer, message)
}

// Counters retorna os contadores acumulados do processo.
func (s *Service) Counters() (uploads, bytes, downloads, expired int64) {
	return s.uploads.Load(), s.bytes.Load(), s.downloads.Load(), s.expired.Load()
}

// Describe carrega o manifest do id, se existir. Servir ou não é decisão
// do chamador, via Manifest.Downloadable.
func (s *Service) Describe(ctx context.Context, id string) (*Manifest, bool) {
	m, err := s.store.LoadManifest(ctx, id)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.Warn("failed to load manifest", "transfer", id, "error", err)
		}
		return nil, false
	}
	return m, true
}

// SweepExpired remove uploads cujo TTL venceu e retorna quantos saíram.
// Uploads abortados contam aqui também: o manifest é gravado no início
// da sessão, então o TTL cobre o lixo deixado por clientes que sumiram.
func (s *Service) SweepExpired() int {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	ids, err := s.store.List(ctx)
	if err != nil {
		s.logger.Warn("staging sweep failed to list", "error", err)
		return 0
	}

	now := time.Now()
	removed := 0
	for _, id := range ids {
		m, err := s.store.LoadManifest(ctx, id)
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				s.logger.Warn("staging sweep failed to load manifest", "transfer", id, "error", err)
			}
			continue
		}
		if !m.Expired(now) {
			continue
		}
		if err := s.store.Delete(ctx, id); err != nil {
			s.logger.Warn("staging sweep failed to delete", "transfer", id, "error", err)
			continue
		}
		removed++
		s.expired.Add(1)
		s.logger.Info("staged upload expired", "transfer", id, "filename", m.Filename)
		s.event("info", "staged_expired", id, "staged upload expired: "+m.Filename)
	}
	return removed
}

// discard apaga os restos de um upload que falhou no meio. Melhor
// esforço: se o store recusar, o TTL resolve depois.
func (s *Service) discard(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()
	if err := s.store.Delete(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
		s.logger.Warn("failed to discard aborted upload", "transfer", id, "error", err)
	}
}
