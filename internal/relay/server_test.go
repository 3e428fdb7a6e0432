// Copyright (c) 2026 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Transfer License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package relay

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nishisan-dev/n-transfer/internal/config"
	"github.com/nishisan-dev/n-transfer/internal/protocol"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testRelayConfig usa keepalive longo para não interferir nos testes que
// não o exercitam; testes de ping e de janela encurtam os campos direto.
func testRelayConfig() *config.RelayConfig {
	return &config.RelayConfig{
		Server: config.ServerListen{Listen: "127.0.0.1:0"},
		Relay: config.RelaySettings{
			KeepaliveInterval: 30 * time.Second,
			ReconnectWindow:   30 * time.Second,
		},
	}
}

func newTestRelay(t *testing.T, cfg *config.RelayConfig) (*Server, *httptest.Server) {
	t.Helper()
	s, err := New(cfg, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	srv := httptest.NewServer(s.Routes())
	t.Cleanup(srv.Close)
	return s, srv
}

func dialWS(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dialing %s: %v", path, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func writeText(t *testing.T, conn *websocket.Conn, payload string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
		t.Fatalf("writing text frame: %v", err)
	}
}

func writeBinary(t *testing.T, conn *websocket.Conn, payload []byte) {
	t.Helper()
	if err := conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
		t.Fatalf("writing binary frame: %v", err)
	}
}

// readText lê o próximo frame e exige que seja texto.
func readText(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	kind, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("reading frame: %v", err)
	}
	if kind != websocket.TextMessage {
		t.Fatalf("expected text frame, got type %d (%d bytes)", kind, len(data))
	}
	return data
}

// readBinary lê o próximo frame e exige que seja binário.
func readBinary(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	kind, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("reading frame: %v", err)
	}
	if kind != websocket.BinaryMessage {
		t.Fatalf("expected binary frame, got type %d: %s", kind, data)
	}
	return data
}

func readTyped(t *testing.T, conn *websocket.Conn, wantType string) []byte {
	t.Helper()
	data := readText(t, conn)
	if got := protocol.PeekType(data); got != wantType {
		t.Fatalf("expected %q frame, got %s", wantType, data)
	}
	return data
}

func handshake(t *testing.T, conn *websocket.Conn, filename string, size int, mimeType string) string {
	t.Helper()
	frame := fmt.Sprintf(`{"type":"send","filename":%q,"size":%d`, filename, size)
	if mimeType != "" {
		frame += fmt.Sprintf(`,"mime_type":%q`, mimeType)
	}
	frame += "}"
	writeText(t, conn, frame)

	var ready protocol.Ready
	if err := json.Unmarshal(readTyped(t, conn, protocol.TypeReady), &ready); err != nil {
		t.Fatalf("decoding ready: %v", err)
	}
	if !protocol.ValidTransferID(ready.ID) {
		t.Fatalf("ready carries invalid id %q", ready.ID)
	}
	return ready.ID
}

func readMetadata(t *testing.T, conn *websocket.Conn) protocol.Metadata {
	t.Helper()
	var meta protocol.Metadata
	if err := json.Unmarshal(readTyped(t, conn, protocol.TypeMetadata), &meta); err != nil {
		t.Fatalf("decoding metadata: %v", err)
	}
	return meta
}

func readErrorText(t *testing.T, conn *websocket.Conn, want string) {
	t.Helper()
	var ef protocol.ErrorFrame
	if err := json.Unmarshal(readTyped(t, conn, protocol.TypeError), &ef); err != nil {
		t.Fatalf("decoding error frame: %v", err)
	}
	if ef.Error != want {
		t.Fatalf("expected error %q, got %q", want, ef.Error)
	}
}

func expectNormalClose(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	_, data, err := conn.ReadMessage()
	if err == nil {
		t.Fatalf("expected close, got frame: %s", data)
	}
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Fatalf("expected normal close, got %v", err)
	}
}

func waitRegistryEmpty(t *testing.T, s *Server) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.registry.Len() == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("registry still holds %d entries", s.registry.Len())
}

func waitEntryState(t *testing.T, s *Server, id string, want EntryState) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if e, ok := s.registry.Peek(id); ok && e.State == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	e, ok := s.registry.Peek(id)
	if !ok {
		t.Fatalf("entry %s vanished while waiting for state %s", id, want)
	}
	t.Fatalf("entry %s stuck in state %s, want %s", id, e.State, want)
}

// Cenário feliz de ponta a ponta: sender registra, recipient reivindica,
// bytes atravessam na ordem, done fecha os dois lados e a entry fica Done
// até o sweep.
func TestServer_HappyPath(t *testing.T) {
	s, srv := newTestRelay(t, testRelayConfig())

	sender := dialWS(t, srv, "/ws/send")
	id := handshake(t, sender, "a.bin", 5, "")

	recipient := dialWS(t, srv, "/ws/recv/"+id)

	// metadata é obrigatoriamente o primeiro frame do recipient, e o
	// mime_type omitido no handshake cai no default.
	meta := readMetadata(t, recipient)
	if meta.Filename != "a.bin" || meta.Size != 5 {
		t.Errorf("unexpected metadata: %+v", meta)
	}
	if meta.MimeType != protocol.DefaultMimeType {
		t.Errorf("expected default mime type, got %q", meta.MimeType)
	}

	readTyped(t, sender, protocol.TypeStart)

	payload := []byte{0x01, 0x02, 0x03, 0x04, 0x05}
	writeBinary(t, sender, payload)
	writeText(t, sender, `{"type":"done"}`)

	if got := readBinary(t, recipient); !bytes.Equal(got, payload) {
		t.Fatalf("payload mismatch: got %x want %x", got, payload)
	}
	readTyped(t, recipient, protocol.TypeDone)

	expectNormalClose(t, sender)

	snap := s.MetricsSnapshot()
	if snap.TransfersRegistered != 1 || snap.TransfersCompleted != 1 {
		t.Errorf("counters: registered=%d completed=%d", snap.TransfersRegistered, snap.TransfersCompleted)
	}
	if snap.BytesRelayed != int64(len(payload)) {
		t.Errorf("bytes relayed: %d", snap.BytesRelayed)
	}

	// A entry fica estacionada como Done até a varredura.
	entry, ok := s.registry.Peek(id)
	if !ok || entry.State != StateDone {
		t.Fatalf("expected Done entry parked for the janitor, got %+v", entry)
	}
	if removed := s.registry.Sweep(); removed != 1 {
		t.Errorf("expected sweep to remove 1, got %d", removed)
	}
}

func TestServer_HandshakeRejectsMalformedMetadata(t *testing.T) {
	cases := []struct {
		name    string
		frame   string
		wantErr string
	}{
		{"invalid json", `{"type":"send","filename"`, ""},
		{"wrong type", `{"type":"noise","filename":"a","size":1}`, protocol.ErrNotSend.Error()},
		{"missing filename", `{"type":"send","size":1}`, protocol.ErrMissingFilename.Error()},
	}

	_, srv := newTestRelay(t, testRelayConfig())
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			conn := dialWS(t, srv, "/ws/send")
			writeText(t, conn, tc.frame)

			var ef protocol.ErrorFrame
			if err := json.Unmarshal(readTyped(t, conn, protocol.TypeError), &ef); err != nil {
				t.Fatalf("decoding error frame: %v", err)
			}
			if tc.wantErr != "" && ef.Error != tc.wantErr {
				t.Errorf("expected error %q, got %q", tc.wantErr, ef.Error)
			}
		})
	}
}

// Primeiro frame binário não ganha nem resposta: a sessão aborta em silêncio.
func TestServer_HandshakeBinaryFirstFrameClosesSilently(t *testing.T) {
	_, srv := newTestRelay(t, testRelayConfig())

	conn := dialWS(t, srv, "/ws/send")
	writeBinary(t, conn, []byte{0xde, 0xad})

	if _, data, err := conn.ReadMessage(); err == nil {
		t.Fatalf("expected the socket to close, got frame: %s", data)
	}
}

// Invariante de claim único: o primeiro recipient leva, o segundo recebe o
// erro canônico.
func TestServer_DoubleClaim(t *testing.T) {
	_, srv := newTestRelay(t, testRelayConfig())

	sender := dialWS(t, srv, "/ws/send")
	id := handshake(t, sender, "doc.pdf", 3, "application/pdf")

	winner := dialWS(t, srv, "/ws/recv/"+id)
	readMetadata(t, winner)

	loser := dialWS(t, srv, "/ws/recv/"+id)
	readErrorText(t, loser, protocol.ErrTextNotFoundOrClaimed)

	// O transfer segue vivo para o vencedor.
	readTyped(t, sender, protocol.TypeStart)
	writeBinary(t, sender, []byte("abc"))
	writeText(t, sender, `{"type":"done"}`)

	if got := readBinary(t, winner); string(got) != "abc" {
		t.Fatalf("unexpected payload: %q", got)
	}
	readTyped(t, winner, protocol.TypeDone)
}

func TestServer_ClaimUnknownID(t *testing.T) {
	_, srv := newTestRelay(t, testRelayConfig())

	conn := dialWS(t, srv, "/ws/recv/NoSuchIdHere")
	readErrorText(t, conn, protocol.ErrTextNotFoundOrClaimed)
}

// GET /api/transfer/{id}: 404 sem entry, 200 aguardando, 410 em qualquer
// outro estado.
func TestServer_TransferInfoLifecycle(t *testing.T) {
	s, srv := newTestRelay(t, testRelayConfig())

	resp, err := http.Get(srv.URL + "/api/transfer/NoSuchIdHere")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing id: expected 404, got %d", resp.StatusCode)
	}

	sender := dialWS(t, srv, "/ws/send")
	id := handshake(t, sender, "report.txt", 11, "text/plain")

	resp, err = http.Get(srv.URL + "/api/transfer/" + id)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	var info transferInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		t.Fatalf("decoding info: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("waiting: expected 200, got %d", resp.StatusCode)
	}
	if info.Filename != "report.txt" || info.Size != 11 || info.MimeType != "text/plain" {
		t.Errorf("unexpected info: %+v", info)
	}

	recipient := dialWS(t, srv, "/ws/recv/"+id)
	readMetadata(t, recipient)
	readTyped(t, sender, protocol.TypeStart)
	waitEntryState(t, s, id, StateActive)

	resp, err = http.Get(srv.URL + "/api/transfer/" + id)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusGone {
		t.Fatalf("active: expected 410, got %d", resp.StatusCode)
	}

	writeText(t, sender, `{"type":"done"}`)
	readTyped(t, recipient, protocol.TypeDone)
	expectNormalClose(t, sender)

	// Done estacionada ainda responde 410; depois do sweep, 404.
	resp, err = http.Get(srv.URL + "/api/transfer/" + id)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusGone {
		t.Fatalf("done: expected 410, got %d", resp.StatusCode)
	}

	s.registry.Sweep()
	resp, err = http.Get(srv.URL + "/api/transfer/" + id)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("after sweep: expected 404, got %d", resp.StatusCode)
	}
}

func TestServer_DownloadPageAndHealthz(t *testing.T) {
	_, srv := newTestRelay(t, testRelayConfig())

	sender := dialWS(t, srv, "/ws/send")
	id := handshake(t, sender, "page.bin", 1, "")

	resp, err := http.Get(srv.URL + "/d/" + id)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), id) {
		t.Error("download page does not mention the transfer id")
	}

	resp, err = http.Get(srv.URL + "/d/NoSuchIdHere")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown id: expected 404, got %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz: expected 200, got %d", resp.StatusCode)
	}
}

// Sender que desiste antes do claim não pode deixar rastro na tabela, e um
// recipient atrasado recebe o erro canônico.
func TestServer_SenderLeavesBeforeClaim(t *testing.T) {
	s, srv := newTestRelay(t, testRelayConfig())

	sender := dialWS(t, srv, "/ws/send")
	id := handshake(t, sender, "ghost.bin", 100, "")
	sender.Close()

	waitRegistryEmpty(t, s)

	late := dialWS(t, srv, "/ws/recv/"+id)
	readErrorText(t, late, protocol.ErrTextNotFoundOrClaimed)
}

// size 0: done logo após start, nenhum frame binário atravessa.
func TestServer_ZeroSizeTransfer(t *testing.T) {
	_, srv := newTestRelay(t, testRelayConfig())

	sender := dialWS(t, srv, "/ws/send")
	id := handshake(t, sender, "empty.txt", 0, "text/plain")

	recipient := dialWS(t, srv, "/ws/recv/"+id)
	meta := readMetadata(t, recipient)
	if meta.Size != 0 {
		t.Errorf("expected size 0, got %d", meta.Size)
	}

	readTyped(t, sender, protocol.TypeStart)
	writeText(t, sender, `{"type":"done"}`)

	// O frame seguinte ao metadata já é o done.
	readTyped(t, recipient, protocol.TypeDone)
	expectNormalClose(t, sender)
}

// Queda do sender no meio do stream: o recipient recebe o que já atravessou
// e o erro canônico; a tabela fica limpa.
func TestServer_SenderDisconnectMidRelay(t *testing.T) {
	s, srv := newTestRelay(t, testRelayConfig())

	sender := dialWS(t, srv, "/ws/send")
	id := handshake(t, sender, "cut.bin", 10, "")

	recipient := dialWS(t, srv, "/ws/recv/"+id)
	readMetadata(t, recipient)
	readTyped(t, sender, protocol.TypeStart)

	writeBinary(t, sender, []byte("hello"))
	sender.Close()

	if got := readBinary(t, recipient); string(got) != "hello" {
		t.Fatalf("unexpected payload: %q", got)
	}
	readErrorText(t, recipient, protocol.ErrTextSenderGone)

	waitRegistryEmpty(t, s)

	// O contador é incrementado logo após a remoção da entry; dá tempo ao
	// scheduler em vez de assumir a ordem.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && s.MetricsSnapshot().TransfersFailed < 1 {
		time.Sleep(10 * time.Millisecond)
	}
	if got := s.MetricsSnapshot().TransfersFailed; got != 1 {
		t.Errorf("expected 1 failed transfer, got %d", got)
	}
}

// Cenário de reconexão: o recipient cai no meio, o sender é pausado, um novo
// recipient reivindica com resume_offset e o stream continua sem duplicar.
// BytesRelayed conta a entrega no socket do recipient: um frame que morreu
// na fila depois de uma queda não entra no contador.
func TestServer_BytesRelayedCountsDeliveredOnly(t *testing.T) {
	s, srv := newTestRelay(t, testRelayConfig())

	sender := dialWS(t, srv, "/ws/send")
	id := handshake(t, sender, "b.bin", 8, "")

	recipient := dialWS(t, srv, "/ws/recv/"+id)
	readMetadata(t, recipient)
	readTyped(t, sender, protocol.TypeStart)
	recipient.Close()

	// Espera a sessão do recipient encerrar: a partir daqui não existe
	// consumidor na fila.
	deadline := time.Now().Add(2 * time.Second)
	for s.MetricsSnapshot().ActiveRecipients != 0 {
		if time.Now().After(deadline) {
			t.Fatal("recipient session never finished")
		}
		time.Sleep(10 * time.Millisecond)
	}

	writeBinary(t, sender, []byte("deadbeef"))
	readTyped(t, sender, protocol.TypePaused)

	if got := s.MetricsSnapshot().BytesRelayed; got != 0 {
		t.Errorf("expected 0 bytes relayed, got %d", got)
	}
}

func TestServer_RecipientReconnectAndResume(t *testing.T) {
	s, srv := newTestRelay(t, testRelayConfig())

	sender := dialWS(t, srv, "/ws/send")
	id := handshake(t, sender, "movie.mkv", 10, "video/x-matroska")

	first := dialWS(t, srv, "/ws/recv/"+id)
	readMetadata(t, first)
	readTyped(t, sender, protocol.TypeStart)

	writeBinary(t, sender, []byte("hello"))
	if got := readBinary(t, first); string(got) != "hello" {
		t.Fatalf("unexpected first payload: %q", got)
	}
	first.Close()

	readTyped(t, sender, protocol.TypePaused)
	waitEntryState(t, s, id, StateReconnecting)

	second := dialWS(t, srv, "/ws/recv/"+id+"?resume_offset=5")
	meta := readMetadata(t, second)
	if meta.Filename != "movie.mkv" {
		t.Errorf("metadata not preserved across reconnect: %+v", meta)
	}

	var resume protocol.Resume
	if err := json.Unmarshal(readTyped(t, sender, protocol.TypeResume), &resume); err != nil {
		t.Fatalf("decoding resume: %v", err)
	}
	if resume.Offset != 5 {
		t.Fatalf("expected resume offset 5, got %d", resume.Offset)
	}

	// Retransmite só a cauda; o novo recipient não vê duplicata.
	writeBinary(t, sender, []byte("world"))
	writeText(t, sender, `{"type":"done"}`)

	if got := readBinary(t, second); string(got) != "world" {
		t.Fatalf("expected only the tail, got %q", got)
	}
	readTyped(t, second, protocol.TypeDone)
	expectNormalClose(t, sender)

	snap := s.MetricsSnapshot()
	if snap.Reconnects != 1 {
		t.Errorf("expected 1 reconnect, got %d", snap.Reconnects)
	}
}

// Janela de reconexão vencida: cancelled com o texto canônico e tabela limpa.
func TestServer_ReconnectWindowExpires(t *testing.T) {
	cfg := testRelayConfig()
	cfg.Relay.ReconnectWindow = 250 * time.Millisecond
	s, srv := newTestRelay(t, cfg)

	sender := dialWS(t, srv, "/ws/send")
	id := handshake(t, sender, "gone.bin", 10, "")

	recipient := dialWS(t, srv, "/ws/recv/"+id)
	readMetadata(t, recipient)
	readTyped(t, sender, protocol.TypeStart)
	recipient.Close()

	readTyped(t, sender, protocol.TypePaused)

	var cancelled protocol.ErrorFrame
	if err := json.Unmarshal(readTyped(t, sender, protocol.TypeCancelled), &cancelled); err != nil {
		t.Fatalf("decoding cancelled: %v", err)
	}
	if cancelled.Error != protocol.ErrTextRecipientGone {
		t.Errorf("expected %q, got %q", protocol.ErrTextRecipientGone, cancelled.Error)
	}
	expectNormalClose(t, sender)

	waitRegistryEmpty(t, s)

	snap := s.MetricsSnapshot()
	if snap.TransfersCancelled != 1 {
		t.Errorf("expected 1 cancelled transfer, got %d", snap.TransfersCancelled)
	}
}

// Sender em espera recebe pings periódicos de keepalive.
func TestServer_KeepalivePingsWhileWaiting(t *testing.T) {
	cfg := testRelayConfig()
	cfg.Relay.KeepaliveInterval = 50 * time.Millisecond
	s, srv := newTestRelay(t, cfg)

	sender := dialWS(t, srv, "/ws/send")

	var pings atomic.Int32
	sender.SetPingHandler(func(string) error {
		pings.Add(1)
		return nil
	})

	handshake(t, sender, "idle.bin", 1, "")

	// O reader precisa rodar para os frames de controle serem processados.
	go func() {
		for {
			if _, _, err := sender.ReadMessage(); err != nil {
				return
			}
		}
	}()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && pings.Load() < 2 {
		time.Sleep(10 * time.Millisecond)
	}
	if pings.Load() < 2 {
		t.Fatalf("expected at least 2 keepalive pings, got %d", pings.Load())
	}

	sender.Close()
	waitRegistryEmpty(t, s)
}

// Frames binários recebidos antes do claim são descartados, nunca
// armazenados para entrega futura.
func TestServer_EarlyBinaryFramesAreDiscarded(t *testing.T) {
	_, srv := newTestRelay(t, testRelayConfig())

	sender := dialWS(t, srv, "/ws/send")
	id := handshake(t, sender, "eager.bin", 4, "")

	writeBinary(t, sender, []byte{0x01, 0x02, 0x03, 0x04})
	time.Sleep(100 * time.Millisecond)

	recipient := dialWS(t, srv, "/ws/recv/"+id)
	readMetadata(t, recipient)
	readTyped(t, sender, protocol.TypeStart)
	writeText(t, sender, `{"type":"done"}`)

	// Nada além do done: o frame adiantado não pode reaparecer.
	readTyped(t, recipient, protocol.TypeDone)
}

// O relay repassa o resume_offset sem validar, inclusive no primeiro attach.
func TestServer_ResumeOffsetForwardedVerbatim(t *testing.T) {
	_, srv := newTestRelay(t, testRelayConfig())

	sender := dialWS(t, srv, "/ws/send")
	id := handshake(t, sender, "tail.bin", 3, "")

	recipient := dialWS(t, srv, "/ws/recv/"+id+"?resume_offset=999999")
	readMetadata(t, recipient)

	var resume protocol.Resume
	if err := json.Unmarshal(readTyped(t, sender, protocol.TypeResume), &resume); err != nil {
		t.Fatalf("decoding resume: %v", err)
	}
	if resume.Offset != 999999 {
		t.Errorf("offset must travel verbatim, got %d", resume.Offset)
	}
}

func TestServer_InvalidResumeOffsetFallsBackToStart(t *testing.T) {
	_, srv := newTestRelay(t, testRelayConfig())

	sender := dialWS(t, srv, "/ws/send")
	id := handshake(t, sender, "plain.bin", 3, "")

	recipient := dialWS(t, srv, "/ws/recv/"+id+"?resume_offset=notanumber")
	readMetadata(t, recipient)
	readTyped(t, sender, protocol.TypeStart)
}
