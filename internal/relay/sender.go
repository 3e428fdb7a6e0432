// Copyright (c) 2026 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Transfer License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package relay

import (
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nishisan-dev/n-transfer/internal/logging"
	"github.com/nishisan-dev/n-transfer/internal/protocol"
)

// maxIDAttempts limita as tentativas de gerar um id livre no registro.
const maxIDAttempts = 5

// claimOutcome é o resultado de uma espera por claim.
type claimOutcome int

const (
	claimClaimed claimOutcome = iota
	claimSenderClosed
	claimWindowExpired
)

// pumpOutcome é o resultado de um ciclo de relay.
type pumpOutcome int

const (
	pumpDone pumpOutcome = iota
	pumpRecipientGone
	pumpSenderGone
)

// SenderSession conduz um socket de sender pelo ciclo completo do transfer:
// handshake de metadata → registro → espera por recipient → relay →
// (pausa e reconexão, se o recipient cair) → término. A sessão é a única
// dona da entry do seu transfer: todo Put e Remove acontece aqui.
type SenderSession struct {
	srv    *Server
	conn   *websocket.Conn
	logger *slog.Logger

	id   string
	meta protocol.FileMetadata
}

// Run executa a sessão até o término. Sempre fecha o socket ao sair e
// garante que nenhuma entry não-terminal fica para trás na tabela.
func (ss *SenderSession) Run() {
	defer ss.conn.Close()

	ss.srv.metrics.ActiveSenders.Add(1)
	defer ss.srv.metrics.ActiveSenders.Add(-1)

	ss.conn.SetReadLimit(protocol.MaxMessageSize)

	done := make(chan struct{})
	defer close(done)
	reads := startReadPump(ss.conn, done)

	// Handshake: a primeira mensagem deve ser texto com o pedido de envio.
	// Frame não-texto ou socket fechado encerram em silêncio.
	first, ok := <-reads
	if !ok || first.kind != websocket.TextMessage {
		return
	}
	meta, err := protocol.ParseSend(first.data)
	if err != nil {
		ss.writeText(protocol.EncodeError(err.Error()))
		return
	}
	ss.meta = meta

	entry := newClaimableEntry(meta, StateWaiting)
	id, ok := ss.register(entry)
	if !ok {
		ss.writeText(protocol.EncodeError("could not allocate a transfer id"))
		return
	}
	ss.id = id

	sessLogger, logCloser, _, err := logging.NewTransferLogger(ss.srv.logger, ss.srv.cfg.TransferLogDir, id)
	if err != nil {
		ss.srv.logger.Warn("transfer log unavailable, using global logger only", "transfer", id, "error", err)
		sessLogger = ss.srv.logger
	} else {
		defer logCloser.Close()
	}
	ss.logger = sessLogger.With("transfer", id, "filename", meta.Filename, "size", meta.Size)

	if err := ss.writeText(protocol.EncodeReady(id)); err != nil {
		ss.abandonAndRemove(entry)
		return
	}

	ss.srv.metrics.TransfersRegistered.Add(1)
	ss.srv.event("info", "transfer_registered", id, meta.Filename)
	ss.logger.Info("transfer registered, waiting for recipient")

	// Espera o primeiro claim sem prazo: a vida da entry é a vida do socket.
	link, outcome := ss.awaitClaim(entry, reads, 0)
	if outcome != claimClaimed {
		ss.abandonAndRemove(entry)
		ss.logger.Info("sender left before a recipient attached")
		return
	}

	firstAttach := true
	for {
		// O sender é quem publica o marcador Active: sequenciar Active e o
		// estado seguinte na mesma goroutine impede que um marcador velho
		// sobrescreva um novo.
		ss.srv.registry.Put(ss.id, newMarkerEntry(ss.meta, StateActive))

		var frame []byte
		if firstAttach && link.ResumeOffset == 0 {
			frame = protocol.EncodeStart()
		} else {
			frame = protocol.EncodeResume(link.ResumeOffset)
		}
		firstAttach = false

		if err := ss.writeText(frame); err != nil {
			ss.dropLink(link)
			ss.srv.registry.Remove(ss.id)
			ss.srv.metrics.TransfersFailed.Add(1)
			ss.logger.Warn("sender write failed before relaying")
			return
		}
		ss.logger.Info("recipient attached, relaying", "resume_offset", link.ResumeOffset)

		switch ss.pump(link, reads) {
		case pumpDone:
			ss.srv.registry.Put(ss.id, newMarkerEntry(ss.meta, StateDone))
			ss.srv.metrics.TransfersCompleted.Add(1)
			ss.srv.event("info", "transfer_complete", ss.id, ss.meta.Filename)
			ss.logger.Info("transfer complete")
			logging.RemoveTransferLog(ss.srv.cfg.TransferLogDir, ss.id)
			sendClose(ss.conn)
			return

		case pumpSenderGone:
			// I/O fatal no sender: a entry sai da tabela e o recipient, se
			// houver, observa o fechamento da fila.
			ss.srv.registry.Remove(ss.id)
			ss.srv.metrics.TransfersFailed.Add(1)
			ss.srv.event("warn", "sender_lost", ss.id, ss.meta.Filename)
			ss.logger.Warn("sender disconnected mid-transfer")
			return

		case pumpRecipientGone:
			close(link.Data)
			ss.srv.event("warn", "recipient_lost", ss.id, ss.meta.Filename)
			ss.logger.Info("recipient dropped, awaiting reconnect", "window", ss.srv.cfg.Relay.ReconnectWindow)

			if err := ss.writeText(protocol.EncodePaused()); err != nil {
				ss.srv.registry.Remove(ss.id)
				ss.srv.metrics.TransfersFailed.Add(1)
				return
			}

			entry = newClaimableEntry(ss.meta, StateReconnecting)
			ss.srv.registry.Put(ss.id, entry)

			// Janela absoluta: o timer arma aqui e não é renovado.
			link, outcome = ss.awaitClaim(entry, reads, ss.srv.cfg.Relay.ReconnectWindow)
			switch outcome {
			case claimClaimed:
				ss.srv.metrics.Reconnects.Add(1)
				ss.srv.event("info", "reconnect", ss.id, ss.meta.Filename)
				continue
			case claimWindowExpired:
				ss.abandonAndRemove(entry)
				ss.writeText(protocol.EncodeCancelled(protocol.ErrTextRecipientGone))
				ss.srv.metrics.TransfersCancelled.Add(1)
				ss.srv.event("warn", "transfer_cancelled", ss.id, ss.meta.Filename)
				ss.logger.Warn("reconnect window expired, transfer cancelled")
				sendClose(ss.conn)
				return
			case claimSenderClosed:
				ss.abandonAndRemove(entry)
				ss.srv.metrics.TransfersFailed.Add(1)
				ss.logger.Warn("sender disconnected while awaiting reconnect")
				return
			}
		}
	}
}

// register gera ids até conseguir inserir a entry na tabela.
func (ss *SenderSession) register(entry *Entry) (string, bool) {
	for i := 0; i < maxIDAttempts; i++ {
		id := protocol.NewTransferID()
		if ss.srv.registry.Register(id, entry) {
			return id, true
		}
	}
	return "", false
}

// awaitClaim espera um recipient publicar o link na entry, emitindo pings
// de keepalive no socket do sender. window > 0 arma o prazo absoluto de
// reconexão; window == 0 espera enquanto o socket viver. Frames recebidos
// do sender durante a espera são descartados.
func (ss *SenderSession) awaitClaim(entry *Entry, reads <-chan inbound, window time.Duration) (RecipientLink, claimOutcome) {
	ticker := time.NewTicker(ss.srv.cfg.Relay.KeepaliveInterval)
	defer ticker.Stop()

	var expire <-chan time.Time
	if window > 0 {
		timer := time.NewTimer(window)
		defer timer.Stop()
		expire = timer.C
	}

	for {
		select {
		case link := <-entry.claim:
			return link, claimClaimed
		case <-expire:
			return RecipientLink{}, claimWindowExpired
		case <-ticker.C:
			deadline := time.Now().Add(writeWait)
			if err := ss.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return RecipientLink{}, claimSenderClosed
			}
		case _, ok := <-reads:
			if !ok {
				return RecipientLink{}, claimSenderClosed
			}
		}
	}
}

// pump é o laço de relay: move frames binários do socket do sender para a
// fila do recipient e honra o sinal de cancelamento. Nos desfechos done e
// sender-gone a fila é fechada aqui; no recipient-gone quem fecha é o
// chamador, depois de decidir a transição.
func (ss *SenderSession) pump(link RecipientLink, reads <-chan inbound) pumpOutcome {
	for {
		select {
		case msg, ok := <-reads:
			if !ok {
				ss.dropLink(link)
				return pumpSenderGone
			}
			switch msg.kind {
			case websocket.BinaryMessage:
				select {
				case link.Data <- RelayMessage{Kind: KindData, Data: msg.data}:
				case <-link.Cancel:
					return pumpRecipientGone
				}
			case websocket.TextMessage:
				if protocol.PeekType(msg.data) == protocol.TypeDone {
					select {
					case link.Data <- RelayMessage{Kind: KindFinished}:
					case <-link.Cancel:
						return pumpRecipientGone
					}
					close(link.Data)
					return pumpDone
				}
				// qualquer outro texto durante o relay é ignorado
			}
		case <-link.Cancel:
			return pumpRecipientGone
		}
	}
}

// dropLink derruba o produtor da fila: tenta avisar o recipient com um
// Error e fecha o canal. O aviso é best-effort — com a fila cheia o
// fechamento sozinho já carrega o mesmo significado.
func (ss *SenderSession) dropLink(link RecipientLink) {
	select {
	case link.Data <- RelayMessage{Kind: KindError, Err: protocol.ErrTextSenderGone}:
	default:
	}
	close(link.Data)
}

// abandonAndRemove desiste do rendezvous pendente e tira a entry da tabela.
func (ss *SenderSession) abandonAndRemove(entry *Entry) {
	entry.Abandon()
	ss.srv.registry.Remove(ss.id)
}

// writeText envia um frame de controle (JSON) ao sender.
func (ss *SenderSession) writeText(payload []byte) error {
	return ss.conn.WriteMessage(websocket.TextMessage, payload)
}
