// Copyright (c) 2026 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Transfer License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package staging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nishisan-dev/n-transfer/internal/protocol"
)

// maxIDAttempts limita as tentativas de gerar um id livre no store.
const maxIDAttempts = 5

// writeWait é o prazo para escritas de controle no socket de upload.
const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// uploadSession conduz um socket de upload até o commit do manifest.
type uploadSession struct {
	svc    *Service
	conn   *websocket.Conn
	logger *slog.Logger

	id   string
	meta protocol.FileMetadata
}

// HandleUpload recebe um upload completo via WebSocket e o deixa staged no
// store até o TTL vencer. O protocolo espelha o do relay: send → ready →
// binários → done. A diferença é que aqui o tamanho declarado é conferido
// byte a byte e cada frame fica limitado a 16 MiB.
func (s *Service) HandleUpload(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("upload upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	sess := &uploadSession{svc: s, conn: conn, logger: s.logger}
	sess.run(r.Context())
}

func (us *uploadSession) run(ctx context.Context) {
	defer us.conn.Close()

	us.conn.SetReadLimit(protocol.MaxMessageSize)

	// Handshake igual ao do relay: a primeira mensagem deve ser texto com
	// o pedido de envio. Frame não-texto ou socket fechado encerram em
	// silêncio.
	kind, data, err := us.conn.ReadMessage()
	if err != nil || kind != websocket.TextMessage {
		return
	}
	meta, err := protocol.ParseSend(data)
	if err != nil {
		us.writeText(protocol.EncodeError(err.Error()))
		return
	}
	us.meta = meta

	id, ok := us.allocateID(ctx)
	if !ok {
		us.writeText(protocol.EncodeError("could not allocate a transfer id"))
		return
	}
	us.id = id
	us.logger = us.logger.With("transfer", id, "filename", meta.Filename, "size", meta.Size)

	now := time.Now()
	manifest := &Manifest{
		ID:            id,
		Filename:      meta.Filename,
		Size:          meta.Size,
		MimeType:      meta.MimeType,
		CreatedAtUnix: now.Unix(),
		ExpiresAtUnix: now.Add(us.svc.cfg.TTL).Unix(),
	}
	// O manifest entra no store antes do primeiro chunk: se o cliente
	// sumir no meio, a varredura de TTL encontra e apaga os restos.
	if err := us.svc.store.SaveManifest(ctx, manifest); err != nil {
		us.logger.Error("failed to save manifest", "error", err)
		us.writeText(protocol.EncodeError("storage failure"))
		return
	}

	if err := us.writeText(protocol.EncodeReady(id)); err != nil {
		us.svc.discard(id)
		return
	}
	us.logger.Info("staged upload accepted")

	var received uint64
	seq := 0
	for {
		kind, data, err := us.conn.ReadMessage()
		if err != nil {
			us.logger.Info("uploader disconnected mid-upload", "received", received)
			us.svc.discard(id)
			return
		}

		switch kind {
		case websocket.BinaryMessage:
			if len(data) > protocol.MaxFrameSize {
				us.abort(protocol.ErrTextFrameTooLarge)
				return
			}
			if received+uint64(len(data)) > meta.Size {
				us.abort(protocol.ErrTextPayloadExceeds)
				return
			}
			seq++
			if err := us.svc.store.AppendChunk(ctx, id, seq, data); err != nil {
				us.logger.Error("failed to append chunk", "seq", seq, "error", err)
				us.abort("storage failure")
				return
			}
			received += uint64(len(data))

		case websocket.TextMessage:
			if protocol.PeekType(data) != protocol.TypeDone {
				continue
			}
			if received != meta.Size {
				us.abort(protocol.ErrTextSizeMismatch)
				return
			}
			manifest.Complete = true
			manifest.ReceivedSize = received
			manifest.ChunkCount = seq
			if err := us.svc.store.SaveManifest(ctx, manifest); err != nil {
				us.logger.Error("failed to commit manifest", "error", err)
				us.abort("storage failure")
				return
			}
			us.svc.uploads.Add(1)
			us.svc.bytes.Add(int64(received))
			us.svc.event("info", "staged_upload", id, fmt.Sprintf("%s (%d bytes)", meta.Filename, received))
			us.logger.Info("staged upload complete", "chunks", seq)
			// Fechamento limpo sem frame de erro é o ack: o manifest foi
			// commitado e o download já está disponível.
			us.sendClose()
			return
		}
	}
}

// allocateID procura um id livre no store com tentativas limitadas.
func (us *uploadSession) allocateID(ctx context.Context) (string, bool) {
	for i := 0; i < maxIDAttempts; i++ {
		id := protocol.NewTransferID()
		_, err := us.svc.store.LoadManifest(ctx, id)
		if errors.Is(err, ErrNotFound) {
			return id, true
		}
		if err != nil {
			us.logger.Warn("id probe failed", "error", err)
			return "", false
		}
		// Id em uso: tenta outro.
	}
	return "", false
}

// abort envia o frame de erro, descarta o que já foi gravado e registra.
func (us *uploadSession) abort(msg string) {
	us.logger.Warn("staged upload aborted", "reason", msg)
	us.writeText(protocol.EncodeError(msg))
	us.svc.discard(us.id)
}

func (us *uploadSession) writeText(payload []byte) error {
	return us.conn.WriteMessage(websocket.TextMessage, payload)
}

func (us *uploadSession) sendClose() {
	deadline := time.Now().Add(writeWait)
	us.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
}
