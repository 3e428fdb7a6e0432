// Copyright (c) 2026 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Transfer License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package staging

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

// maxBurstSize limita o burst do token bucket a 256KB, a mesma ordem de
// grandeza dos chunks servidos no download. Sem esse teto, um cliente
// recém-conectado drenaria segundos de cota de uma vez.
const maxBurstSize = 256 * 1024

// ThrottledWriter embrulha o http.ResponseWriter de um download staged e
// limita a vazão por conexão a bytesPerSec, para que um único recipient
// não monopolize o uplink do relay.
type ThrottledWriter struct {
	w       io.Writer
	limiter *rate.Limiter
	ctx     context.Context
}

// NewThrottledWriter cria o writer limitado. bytesPerSec <= 0 significa
// downloads sem limite e devolve w intacto.
func NewThrottledWriter(ctx context.Context, w io.Writer, bytesPerSec int64) io.Writer {
	if bytesPerSec <= 0 {
		return w
	}

	burst := int(bytesPerSec)
	if burst > maxBurstSize {
		burst = maxBurstSize
	}

	return &ThrottledWriter{
		w:       w,
		limiter: rate.NewLimiter(rate.Limit(bytesPerSec), burst),
		ctx:     ctx,
	}
}

// Write consome tokens antes de repassar os bytes. Escritas maiores que o
// burst são fatiadas: WaitN com n acima do burst falharia direto.
func (tw *ThrottledWriter) Write(p []byte) (int, error) {
	totalWritten := 0

	for len(p) > 0 {
		chunk := len(p)
		if chunk > tw.limiter.Burst() {
			chunk = tw.limiter.Burst()
		}

		// Bloqueia até haver cota; ctx cancelado (cliente sumiu) aborta.
		if err := tw.limiter.WaitN(tw.ctx, chunk); err != nil {
			return totalWritten, err
		}

		n, err := tw.w.Write(p[:chunk])
		totalWritten += n
		if err != nil {
			return totalWritten, err
		}

		p = p[n:]
	}

	return totalWritten, nil
}
