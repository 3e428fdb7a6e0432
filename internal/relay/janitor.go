// Copyright (c) 2026 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Transfer License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package relay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// SweepInterval é a cadência das varreduras do janitor. Entries não-terminais
// nunca são removidas por idade: a vida delas é a vida do socket do sender.
const SweepInterval = 60 * time.Second

// Janitor agenda varreduras periódicas: a de entries Done na tabela do relay
// e, quando o staging está habilitado, a de arquivos expirados.
type Janitor struct {
	cron   *cron.Cron
	logger *slog.Logger
}

// NewJanitor cria o janitor sem nenhuma varredura registrada.
func NewJanitor(logger *slog.Logger) *Janitor {
	c := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))))
	return &Janitor{
		cron:   c,
		logger: logger.With("component", "janitor"),
	}
}

// AddSweep registra uma varredura periódica. fn retorna quantos itens saíram.
func (j *Janitor) AddSweep(name string, every time.Duration, fn func() int) error {
	spec := fmt.Sprintf("@every %s", every)
	_, err := j.cron.AddFunc(spec, func() {
		if n := fn(); n > 0 {
			j.logger.Debug("sweep complete", "task", name, "removed", n)
		}
	})
	if err != nil {
		return fmt.Errorf("registering sweep %s: %w", name, err)
	}
	return nil
}

// Start inicia o agendamento.
func (j *Janitor) Start() {
	j.logger.Info("janitor started")
	j.cron.Start()
}

// Stop para o agendamento e aguarda varreduras em andamento.
func (j *Janitor) Stop(ctx context.Context) {
	stopCtx := j.cron.Stop()
	select {
	case <-stopCtx.Done():
		j.logger.Info("janitor stopped")
	case <-ctx.Done():
		j.logger.Warn("janitor stop timed out")
	}
}
