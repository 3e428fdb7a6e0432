// Copyright (c) 2026 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Transfer License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package staging

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/nishisan-dev/n-transfer/internal/protocol"
)

// HandleDownload serve um staged upload completo por HTTP puro, com
// Content-Length e Content-Disposition corretos e rate limit opcional.
// Id desconhecido é 404; conhecido mas incompleto ou expirado é 410.
func (s *Service) HandleDownload(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	m, err := s.store.LoadManifest(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		s.logger.Error("failed to load manifest", "transfer", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !m.Downloadable(time.Now()) {
		// O id existiu (ready chegou a ser emitido), mas não há nada
		// servível: upload incompleto ou retenção vencida.
		http.Error(w, "gone", http.StatusGone)
		return
	}

	mimeType := m.MimeType
	if mimeType == "" {
		mimeType = protocol.DefaultMimeType
	}
	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Content-Length", strconv.FormatUint(m.Size, 10))
	w.Header().Set("Content-Disposition",
		mime.FormatMediaType("attachment", map[string]string{"filename": m.Filename}))

	out := NewThrottledWriter(r.Context(), w, s.cfg.DownloadRateRaw)

	var sent int64
	for seq := 1; seq <= m.ChunkCount; seq++ {
		rc, err := s.store.OpenChunk(r.Context(), id, seq)
		if err != nil {
			// Headers já foram: só resta cortar a conexão.
			s.logger.Error("failed to open chunk mid-download", "transfer", id, "seq", seq, "error", err)
			return
		}
		n, err := io.Copy(out, rc)
		rc.Close()
		sent += n
		if err != nil {
			s.logger.Debug("download interrupted", "transfer", id, "sent", sent, "error", err)
			return
		}
	}

	s.downloads.Add(1)
	s.event("info", "staged_download", id, m.Filename)
	s.logger.Info("staged download served", "filename", m.Filename, "bytes", sent)
}
