// Copyright (c) 2026 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Transfer License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package relay

import (
	"time"

	"github.com/gorilla/websocket"
)

// writeWait é o prazo para escritas de controle (ping, close) no socket.
const writeWait = 10 * time.Second

// sendClose emite um close frame educado antes do fechamento do socket.
// Falha aqui é irrelevante: o Close da conexão vem logo em seguida.
func sendClose(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}

// inbound é uma mensagem lida do socket, já classificada pelo tipo do frame.
type inbound struct {
	kind int // websocket.TextMessage ou websocket.BinaryMessage
	data []byte
}

// startReadPump drena o socket em uma goroutine dedicada e entrega cada
// mensagem no canal retornado. O canal é fechado quando a leitura falha,
// o que para a sessão significa "o peer fechou".
//
// O canal é sem buffer de propósito: enquanto a sessão não consome a
// mensagem corrente, nada mais é lido do socket e o backpressure chega ao
// peer por TCP. A goroutine termina quando a leitura falha ou quando done
// é fechado; a sessão deve fechar a conexão antes de done para destravar
// um ReadMessage pendente.
func startReadPump(conn *websocket.Conn, done <-chan struct{}) <-chan inbound {
	ch := make(chan inbound)
	go func() {
		defer close(ch)
		for {
			kind, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			select {
			case ch <- inbound{kind: kind, data: data}:
			case <-done:
				return
			}
		}
	}()
	return ch
}
