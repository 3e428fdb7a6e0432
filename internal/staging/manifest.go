// Copyright (c) 2026 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Transfer License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package staging implementa o modo de envio antecipado do N-Transfer: o
// sender sobe o arquivo em chunks antes de existir qualquer recipient e o
// download acontece depois, por HTTP, até o arquivo expirar. Diferente do
// relay puro, aqui o tamanho declarado é imposto byte a byte.
package staging

import "time"

// Manifest descreve um arquivo staged e o progresso do upload. É gravado
// junto dos chunks e é a fonte de verdade para download, expiração e sweep.
type Manifest struct {
	ID            string `json:"id"`
	Filename      string `json:"filename"`
	Size          uint64 `json:"size"`
	MimeType      string `json:"mime_type"`
	ReceivedSize  uint64 `json:"received_size"`
	ChunkCount    int    `json:"chunk_count"`
	Complete      bool   `json:"complete"`
	CreatedAtUnix int64  `json:"created_at_unix"`
	ExpiresAtUnix int64  `json:"expires_at_unix"`
}

// Expired informa se o arquivo passou do prazo de retenção.
func (m *Manifest) Expired(now time.Time) bool {
	return now.Unix() > m.ExpiresAtUnix
}

// Downloadable informa se o arquivo pode ser servido: upload commitado e
// dentro do prazo. Manifests que existem mas não passam aqui respondem 410.
func (m *Manifest) Downloadable(now time.Time) bool {
	return m.Complete && !m.Expired(now)
}
