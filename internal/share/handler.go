// Copyright (c) 2026 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Transfer License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package share

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nishisan-dev/n-transfer/internal/protocol"
	"github.com/nishisan-dev/n-transfer/internal/staging"
)

// writeWait é o prazo para escritas de controle nos sockets de download.
const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server expõe os arquivos compartilhados por HTTP e WebSocket.
type Server struct {
	svc       *Service
	logger    *slog.Logger
	rateLimit int64
}

// NewServer cria o servidor de share. rateLimit (bytes/s) vale só para o
// download direto; 0 desliga.
func NewServer(svc *Service, logger *slog.Logger, rateLimit int64) *Server {
	return &Server{svc: svc, logger: logger, rateLimit: rateLimit}
}

// Routes monta o mux do share.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws/dl/{token}", s.handleEncryptedDownload)
	mux.HandleFunc("GET /dl/{token}", s.handleDirectDownload)
	mux.HandleFunc("GET /api/file/{token}", s.handleFileInfo)
	mux.HandleFunc("GET /d/{token}", s.handleDownloadPage)
	return mux
}

// handleEncryptedDownload serve o arquivo pelo caminho cifrado: metadata
// primeiro, depois os chunks selados, done no fim. Socket fechado no meio
// só interrompe esta sessão; o arquivo continua servível.
func (s *Server) handleEncryptedDownload(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	f, ok := s.svc.Lookup(token)
	if !ok {
		http.NotFound(w, r)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("download upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer conn.Close()

	logger := s.logger.With("token", token, "filename", f.Filename)

	meta := protocol.FileMetadata{Filename: f.Filename, Size: f.Size, MimeType: f.MimeType}
	if err := conn.WriteMessage(websocket.TextMessage, protocol.EncodeMetadata(meta, s.svc.Encoding())); err != nil {
		return
	}

	var sent int64
	err = StreamFile(f, s.svc.Encoding(), func(sealed []byte) error {
		if err := conn.WriteMessage(websocket.BinaryMessage, sealed); err != nil {
			return err
		}
		sent += int64(len(sealed))
		return nil
	})
	if err != nil {
		logger.Debug("encrypted download interrupted", "sealed_bytes", sent, "error", err)
		// Se o socket ainda estiver vivo (falha foi local), avisa o peer.
		conn.WriteMessage(websocket.TextMessage, protocol.EncodeError("share stream failed"))
		return
	}

	if err := conn.WriteMessage(websocket.TextMessage, protocol.EncodeDone()); err != nil {
		return
	}
	sendClose(conn)
	logger.Info("encrypted download served", "sealed_bytes", sent)
}

// handleDirectDownload serve o arquivo plaintext, para quem recebeu o
// link fora de banda e vai baixar com curl.
func (s *Server) handleDirectDownload(w http.ResponseWriter, r *http.Request) {
	f, ok := s.svc.Lookup(r.PathValue("token"))
	if !ok {
		http.NotFound(w, r)
		return
	}

	file, err := os.Open(f.Path)
	if err != nil {
		s.logger.Error("failed to open shared file", "path", f.Path, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	defer file.Close()

	w.Header().Set("Content-Type", f.MimeType)
	w.Header().Set("Content-Length", strconv.FormatUint(f.Size, 10))
	w.Header().Set("Content-Disposition",
		mime.FormatMediaType("attachment", map[string]string{"filename": f.Filename}))

	out := staging.NewThrottledWriter(r.Context(), w, s.rateLimit)
	n, err := io.Copy(out, file)
	if err != nil {
		s.logger.Debug("direct download interrupted", "token", f.Token, "sent", n, "error", err)
		return
	}
	s.logger.Info("direct download served", "token", f.Token, "filename", f.Filename, "bytes", n)
}

type fileInfo struct {
	Filename string `json:"filename"`
	Size     uint64 `json:"size"`
	MimeType string `json:"mime_type"`
}

func (s *Server) handleFileInfo(w http.ResponseWriter, r *http.Request) {
	f, ok := s.svc.Lookup(r.PathValue("token"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, fileInfo{Filename: f.Filename, Size: f.Size, MimeType: f.MimeType})
}

func (s *Server) handleDownloadPage(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	if _, ok := s.svc.Lookup(token); !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<!DOCTYPE html><html><head><title>N-Transfer</title></head><body><h1>N-Transfer</h1><p>File <code>%s</code> is available. Use a client to receive it.</p></body></html>`, token)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

func sendClose(conn *websocket.Conn) {
	deadline := time.Now().Add(writeWait)
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
}

// Run inicia o share e bloqueia até o context ser cancelado.
func Run(ctx context.Context, addr string, s *Server) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	defer ln.Close()

	return RunWithListener(ctx, ln, s)
}

// RunWithListener inicia o share com um listener já existente (para testes).
func RunWithListener(ctx context.Context, ln net.Listener, s *Server) error {
	httpSrv := &http.Server{
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("share listening", "address", ln.Addr().String(), "encoding", s.svc.Encoding())

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpSrv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down share")
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpSrv.Shutdown(shutCtx)
		// Sockets promovidos não são alcançados pelo Shutdown.
		httpSrv.Close()
		<-errCh
		return nil

	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("share server: %w", err)
		}
		return nil
	}
}
