// Copyright (c) 2026 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Transfer License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package relay

import "sync/atomic"

// Metrics agrega os contadores operacionais do relay. Todos os campos são
// atômicos e podem ser lidos a qualquer momento sem lock.
type Metrics struct {
	TransfersRegistered atomic.Int64
	TransfersCompleted  atomic.Int64
	TransfersCancelled  atomic.Int64
	TransfersFailed     atomic.Int64
	Reconnects          atomic.Int64
	// BytesRelayed conta no momento da escrita no socket do recipient:
	// frames que morreram na fila após uma queda não entram.
	BytesRelayed atomic.Int64
	ActiveSenders       atomic.Int32
	ActiveRecipients    atomic.Int32
}
