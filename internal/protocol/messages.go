// Copyright (c) 2026 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Transfer License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package protocol define o vocabulário de frames trocados sobre WebSocket
// entre clients (sender/recipient) e o relay N-Transfer. Frames de texto são
// JSON UTF-8 com discriminador "type"; frames binários carregam payload
// opaco (ciphertext fim-a-fim) e nunca passam por este pacote.
package protocol

// Tipos de frame de controle.
const (
	TypeSend      = "send"      // client → relay: anuncia um transfer
	TypeReady     = "ready"     // relay → sender: transfer registrado, id alocado
	TypeStart     = "start"     // relay → sender: recipient conectado, pode transmitir
	TypePaused    = "paused"    // relay → sender: recipient caiu, aguardando reconexão
	TypeResume    = "resume"    // relay → sender: recipient reconectou, retomar do offset
	TypeCancelled = "cancelled" // relay → sender: janela de reconexão venceu
	TypeError     = "error"     // relay → client: falha terminal
	TypeDone      = "done"      // sender → relay e relay → recipient: fim do payload
	TypeMetadata  = "metadata"  // relay → recipient: metadados do arquivo
)

// Limites do protocolo.
const (
	// MaxMessageSize é o teto por mensagem WebSocket aceito pelo relay (1 GiB).
	MaxMessageSize = 1 << 30

	// MaxFrameSize é o teto por frame binário de payload (16 MiB). Clients
	// fatiam o arquivo em chunks menores ou iguais a este limite.
	MaxFrameSize = 16 << 20

	// DefaultMimeType é aplicado quando o sender omite mime_type.
	DefaultMimeType = "application/octet-stream"
)

// Textos de erro do wire. Clients fazem match literal destes textos; mudanças
// aqui quebram compatibilidade.
const (
	ErrTextNotFoundOrClaimed = "Transfer not found or already claimed"
	ErrTextSenderGone        = "Sender disconnected"
	ErrTextRecipientGone     = "Recipient disconnected"
	ErrTextPayloadExceeds    = "payload exceeds declared size"
	ErrTextSizeMismatch      = "payload size mismatch"
	ErrTextFrameTooLarge     = "frame exceeds 16 MiB limit"
)

// FileMetadata descreve o arquivo anunciado pelo sender. Size é declarativo:
// o relay nunca valida os bytes encaminhados contra ele (payload é opaco).
type FileMetadata struct {
	Filename string `json:"filename"`
	Size     uint64 `json:"size"`
	MimeType string `json:"mime_type"`
}

// SendRequest é o primeiro frame do sender ({"type":"send",...}).
type SendRequest struct {
	Type     string `json:"type"`
	Filename string `json:"filename"`
	Size     uint64 `json:"size"`
	MimeType string `json:"mime_type,omitempty"`
}

// Ready confirma o registro do transfer e entrega o id ao sender.
type Ready struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// Signal é um frame de controle sem payload (start, paused, done).
type Signal struct {
	Type string `json:"type"`
}

// Resume instrui o sender a retomar a transmissão a partir de Offset.
// O offset vem do recipient reconectado e é encaminhado verbatim.
type Resume struct {
	Type   string `json:"type"`
	Offset uint64 `json:"offset"`
}

// ErrorFrame sinaliza falha terminal ou cancelamento ao peer.
type ErrorFrame struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// Metadata é o primeiro frame entregue ao recipient, sempre antes de qualquer
// byte de payload. Encoding só aparece no modo share (compressão client-side).
type Metadata struct {
	Type     string `json:"type"`
	Filename string `json:"filename"`
	Size     uint64 `json:"size"`
	MimeType string `json:"mime_type"`
	Encoding string `json:"encoding,omitempty"`
}
