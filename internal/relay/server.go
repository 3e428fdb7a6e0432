// Copyright (c) 2026 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Transfer License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nishisan-dev/n-transfer/internal/config"
	"github.com/nishisan-dev/n-transfer/internal/observability"
	"github.com/nishisan-dev/n-transfer/internal/staging"
)

// upgrader promove requests HTTP a WebSocket. Origin é liberado: o payload
// é cifrado fim-a-fim e os ids são bearer capabilities.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// EventSink recebe eventos operacionais do relay. É satisfeita por
// *observability.EventStore; nil desliga a publicação.
type EventSink interface {
	PushEvent(level, eventType, transfer, message string)
}

// Server é a raiz do ntransfer-relay: a tabela de transfers, as métricas e
// as rotas WebSocket/HTTP. O modo staging, quando habilitado, é montado nas
// mesmas rotas.
type Server struct {
	cfg       *config.RelayConfig
	logger    *slog.Logger
	registry  *Registry
	metrics   Metrics
	staging   *staging.Service
	events    EventSink
	startedAt time.Time
}

// New monta o servidor a partir da configuração. O sink de eventos começa
// desligado; Run o conecta quando a observabilidade está habilitada.
func New(cfg *config.RelayConfig, logger *slog.Logger) (*Server, error) {
	s := &Server{
		cfg:       cfg,
		logger:    logger,
		registry:  NewRegistry(),
		startedAt: time.Now(),
	}

	if cfg.Staging.Enabled {
		var store staging.ChunkStore
		var err error
		switch cfg.Staging.Store {
		case "s3":
			store, err = staging.NewS3Store(context.Background(), cfg.Staging.S3)
			if err != nil {
				return nil, fmt.Errorf("initializing s3 staging store: %w", err)
			}
		default:
			store, err = staging.NewDiskStore(cfg.Staging.BaseDir)
			if err != nil {
				return nil, fmt.Errorf("initializing disk staging store: %w", err)
			}
		}
		s.staging = staging.NewService(cfg.Staging, logger, store)
	}

	return s, nil
}

// Routes devolve o handler HTTP com todas as rotas do relay.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /ws/send", s.handleSend)
	mux.HandleFunc("GET /ws/recv/{id}", s.handleRecv)
	mux.HandleFunc("GET /api/transfer/{id}", s.handleTransferInfo)
	mux.HandleFunc("GET /d/{id}", s.handleDownloadPage)
	mux.HandleFunc("GET /healthz", s.handleHealthz)

	if s.staging != nil {
		mux.HandleFunc("GET /ws/upload", s.staging.HandleUpload)
		mux.HandleFunc("GET /dl/{id}", s.staging.HandleDownload)
	}

	return mux
}

// handleSend promove o socket e entrega ao SenderSession.
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("sender upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	sess := &SenderSession{srv: s, conn: conn, logger: s.logger}
	sess.Run()
}

// handleRecv promove o socket e entrega ao RecipientSession. Um
// resume_offset inválido vale como 0.
func (s *Server) handleRecv(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var resumeOffset uint64
	if raw := r.URL.Query().Get("resume_offset"); raw != "" {
		if v, err := strconv.ParseUint(raw, 10, 64); err == nil {
			resumeOffset = v
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("recipient upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	sess := &RecipientSession{srv: s, conn: conn}
	sess.Run(id, resumeOffset)
}

// transferInfo é a resposta de GET /api/transfer/{id}.
type transferInfo struct {
	Filename string `json:"filename"`
	Size     uint64 `json:"size"`
	MimeType string `json:"mime_type"`
	Staged   bool   `json:"staged,omitempty"`
}

// handleTransferInfo responde 200 com os metadados enquanto o transfer
// aguarda o primeiro recipient, 410 para qualquer outro estado e 404 quando
// o id não existe. Com staging habilitado, ids de arquivos staged também
// respondem 200, marcados com staged=true.
func (s *Server) handleTransferInfo(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if entry, ok := s.registry.Peek(id); ok {
		if entry.State != StateWaiting {
			w.WriteHeader(http.StatusGone)
			return
		}
		writeJSON(w, http.StatusOK, transferInfo{
			Filename: entry.Metadata.Filename,
			Size:     entry.Metadata.Size,
			MimeType: entry.Metadata.MimeType,
		})
		return
	}

	if s.staging != nil {
		if m, ok := s.staging.Describe(r.Context(), id); ok {
			if !m.Downloadable(time.Now()) {
				w.WriteHeader(http.StatusGone)
				return
			}
			writeJSON(w, http.StatusOK, transferInfo{
				Filename: m.Filename,
				Size:     m.Size,
				MimeType: m.MimeType,
				Staged:   true,
			})
			return
		}
	}

	http.NotFound(w, r)
}

// handleDownloadPage serve a página mínima de download. A entrega de
// assets fica fora do relay: aqui vai só o suficiente para um humano
// conferir que o link está vivo.
func (s *Server) handleDownloadPage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	_, inRegistry := s.registry.Peek(id)
	inStaging := false
	if !inRegistry && s.staging != nil {
		if m, ok := s.staging.Describe(r.Context(), id); ok && m.Downloadable(time.Now()) {
			inStaging = true
		}
	}
	if !inRegistry && !inStaging {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<!DOCTYPE html><html><head><title>N-Transfer</title></head><body><h1>N-Transfer</h1><p>Transfer <code>%s</code> is available. Use a client to receive it.</p></body></html>`, id)
}

// handleHealthz é o check usado por load balancers.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// MetricsSnapshot implementa observability.HandlerMetrics.
func (s *Server) MetricsSnapshot() observability.MetricsData {
	data := observability.MetricsData{
		UptimeSeconds:       int64(time.Since(s.startedAt).Seconds()),
		ActiveSenders:       s.metrics.ActiveSenders.Load(),
		ActiveRecipients:    s.metrics.ActiveRecipients.Load(),
		RegistryEntries:     s.registry.Len(),
		TransfersRegistered: s.metrics.TransfersRegistered.Load(),
		TransfersCompleted:  s.metrics.TransfersCompleted.Load(),
		TransfersCancelled:  s.metrics.TransfersCancelled.Load(),
		TransfersFailed:     s.metrics.TransfersFailed.Load(),
		Reconnects:          s.metrics.Reconnects.Load(),
		BytesRelayed:        s.metrics.BytesRelayed.Load(),
	}
	if s.staging != nil {
		data.StagedUploads, data.StagedBytes, data.StagedDownloads, data.StagedExpired = s.staging.Counters()
	}
	return data
}

// event publica no sink de observabilidade, se houver.
func (s *Server) event(level, eventType, transfer, message string) {
	if s.events != nil {
		s.events.PushEvent(level, eventType, transfer, message)
	}
}

// Run inicia o relay e bloqueia até o context ser cancelado.
func Run(ctx context.Context, cfg *config.RelayConfig, logger *slog.Logger) error {
	ln, err := net.Listen("tcp", cfg.Server.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.Server.Listen, err)
	}
	defer ln.Close()

	return RunWithListener(ctx, ln, cfg, logger)
}

// RunWithListener inicia o relay com um listener já existente (para testes).
// Compõe o servidor principal, o janitor e, quando habilitado, o listener
// de observabilidade.
func RunWithListener(ctx context.Context, ln net.Listener, cfg *config.RelayConfig, logger *slog.Logger) error {
	s, err := New(cfg, logger)
	if err != nil {
		return err
	}

	dscp, err := ParseDSCP(cfg.Server.DSCP)
	if err != nil {
		return fmt.Errorf("server.dscp: %w", err)
	}
	ln = newDSCPListener(ln, dscp, logger)

	// Observabilidade em listener separado, protegido por ACL.
	var obsSrv *http.Server
	if cfg.Observability.Enabled {
		events, err := observability.NewEventStore(cfg.Observability.EventsFile, 500, cfg.Observability.EventsMaxLines)
		if err != nil {
			return fmt.Errorf("opening event store: %w", err)
		}
		defer events.Close()
		s.events = events
		if s.staging != nil {
			s.staging.SetEventSink(events)
		}

		watchPath := "/"
		if cfg.Staging.Enabled && cfg.Staging.Store == "disk" {
			watchPath = cfg.Staging.BaseDir
		}
		monitor := observability.NewSystemMonitor(logger, watchPath)
		monitor.Start()
		defer monitor.Stop()

		acl := observability.NewACL(cfg.Observability.ParsedCIDRs)
		obsSrv = &http.Server{
			Addr:         cfg.Observability.Listen,
			Handler:      observability.NewRouter(s, monitor, events, cfg, acl),
			ReadTimeout:  cfg.Observability.ReadTimeout,
			WriteTimeout: cfg.Observability.WriteTimeout,
			IdleTimeout:  cfg.Observability.IdleTimeout,
		}
		go func() {
			logger.Info("observability listening", "address", cfg.Observability.Listen)
			if err := obsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("observability server error", "error", err)
			}
		}()
	}

	janitor := NewJanitor(logger)
	if err := janitor.AddSweep("registry", SweepInterval, s.registry.Sweep); err != nil {
		return err
	}
	if s.staging != nil {
		if err := janitor.AddSweep("staging", SweepInterval, s.staging.SweepExpired); err != nil {
			return err
		}
	}
	janitor.Start()

	// WebSockets são conexões longas: só o header ganha prazo de leitura.
	httpSrv := &http.Server{
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("relay listening", "address", ln.Addr().String(),
		"staging", cfg.Staging.Enabled, "keepalive", cfg.Relay.KeepaliveInterval,
		"reconnect_window", cfg.Relay.ReconnectWindow)

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpSrv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down relay")
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpSrv.Shutdown(shutCtx)
		// Sockets promovidos não são alcançados pelo Shutdown; o Close
		// derruba as sessões restantes e elas limpam a tabela ao sair.
		httpSrv.Close()
		if obsSrv != nil {
			obsSrv.Shutdown(shutCtx)
		}
		janitor.Stop(shutCtx)
		<-errCh
		logger.Info("relay shutdown complete")
		return nil

	case err := <-errCh:
		if obsSrv != nil {
			obsSrv.Close()
		}
		janitor.Stop(context.Background())
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving relay: %w", err)
	}
}

// writeJSON serializa v como JSON e envia com o status informado.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}
