// Copyright (c) 2026 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Transfer License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package relay

import (
	"log/slog"

	"github.com/gorilla/websocket"

	"github.com/nishisan-dev/n-transfer/internal/protocol"
)

// RecipientSession reivindica um transfer pendente e drena a fila de dados
// para o socket do recipient. A sessão nunca escreve na tabela: depois do
// Take, toda transição de estado pertence ao sender — inclusive quando este
// recipient cair e o transfer voltar a ficar reivindicável.
type RecipientSession struct {
	srv    *Server
	conn   *websocket.Conn
	logger *slog.Logger
}

// Run executa o claim e o pump até o término.
func (rs *RecipientSession) Run(id string, resumeOffset uint64) {
	defer rs.conn.Close()

	rs.srv.metrics.ActiveRecipients.Add(1)
	defer rs.srv.metrics.ActiveRecipients.Add(-1)

	rs.conn.SetReadLimit(protocol.MaxMessageSize)
	rs.logger = rs.srv.logger.With("transfer", id, "resume_offset", resumeOffset)

	// Claim: o Take atômico é o que decide a corrida entre recipients —
	// exatamente um recebe a entry, os demais veem a tabela vazia.
	entry, ok := rs.srv.registry.Take(id)
	if !ok || !entry.Claimable() {
		rs.writeText(protocol.EncodeError(protocol.ErrTextNotFoundOrClaimed))
		rs.logger.Debug("claim rejected")
		return
	}

	link := NewRecipientLink(resumeOffset)

	// Publica o link antes de qualquer escrita no próprio socket: a partir
	// daqui qualquer falha desta sessão vira um sinal de cancelamento, que o
	// sender trata como queda de recipient. Sem isso, uma falha de escrita
	// entre o Take e o publish deixaria o sender esperando um claim que
	// nunca virá.
	if !entry.Publish(link) {
		rs.writeText(protocol.EncodeError(protocol.ErrTextSenderGone))
		rs.logger.Debug("sender was gone at claim time")
		return
	}

	// metadata precede qualquer frame binário no socket do recipient.
	if err := rs.writeText(protocol.EncodeMetadata(entry.Metadata, "")); err != nil {
		link.SignalCancel()
		return
	}
	rs.logger.Info("transfer claimed", "filename", entry.Metadata.Filename, "size", entry.Metadata.Size)

	done := make(chan struct{})
	defer close(done)
	reads := startReadPump(rs.conn, done)

	rs.pumpToSocket(link, reads)
}

// pumpToSocket drena a fila para o socket até um desfecho terminal.
func (rs *RecipientSession) pumpToSocket(link RecipientLink, reads <-chan inbound) {
	for {
		select {
		case msg, ok := <-link.Data:
			if !ok {
				// Produtor caiu sem Finished: sender desconectou.
				rs.writeText(protocol.EncodeError(protocol.ErrTextSenderGone))
				rs.logger.Warn("sender dropped mid-stream")
				return
			}
			switch msg.Kind {
			case KindData:
				if err := rs.conn.WriteMessage(websocket.BinaryMessage, msg.Data); err != nil {
					link.SignalCancel()
					rs.logger.Debug("recipient write failed, signalling cancel")
					return
				}
				rs.srv.metrics.BytesRelayed.Add(int64(len(msg.Data)))
			case KindFinished:
				rs.writeText(protocol.EncodeDone())
				rs.logger.Info("transfer delivered")
				sendClose(rs.conn)
				return
			case KindError:
				rs.writeText(protocol.EncodeError(msg.Err))
				rs.logger.Warn("relay aborted", "error", msg.Err)
				return
			}

		case _, ok := <-reads:
			if !ok {
				// Recipient fechou ou a leitura falhou.
				link.SignalCancel()
				rs.logger.Info("recipient disconnected")
				return
			}
			// frames vindos do recipient durante o relay são descartados
		}
	}
}

// writeText envia um frame de controle (JSON) ao recipient.
func (rs *RecipientSession) writeText(payload []byte) error {
	return rs.conn.WriteMessage(websocket.TextMessage, payload)
}
