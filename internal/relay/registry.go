// Copyright (c) 2026 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Transfer License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package relay implementa o núcleo do ntransfer-relay: a tabela concorrente
// de transfers, o rendezvous sender/recipient e o pump de streaming com
// backpressure. O relay nunca inspeciona nem persiste payload.
package relay

import (
	"sync"
	"time"

	"github.com/nishisan-dev/n-transfer/internal/protocol"
)

// EntryState classifica o estado de um transfer na tabela.
type EntryState int

const (
	// StateWaiting: sender registrado, nenhum recipient ainda.
	StateWaiting EntryState = iota
	// StateReconnecting: recipient caiu no meio do stream; o sender segue
	// conectado aguardando um novo claim.
	StateReconnecting
	// StateActive: um recipient está anexado e o relay está em andamento.
	StateActive
	// StateDone: terminal; elegível para o sweep do janitor.
	StateDone
)

func (s EntryState) String() string {
	switch s {
	case StateWaiting:
		return "waiting"
	case StateReconnecting:
		return "reconnecting"
	case StateActive:
		return "active"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// MessageKind discrimina o conteúdo de uma RelayMessage.
type MessageKind int

const (
	KindData MessageKind = iota
	KindFinished
	KindError
)

// RelayMessage é a unidade que atravessa a fila sender → recipient.
type RelayMessage struct {
	Kind MessageKind
	Data []byte
	Err  string
}

// DataQueueDepth limita quantos frames ficam em trânsito na fila de dados.
// Com a fila cheia o pump do sender para de ler o socket e o backpressure
// chega ao peer via TCP. Uma fila maior transformaria o relay em buffer.
const DataQueueDepth = 16

// RecipientLink é o que o recipient entrega ao sender no rendezvous:
// a fila de dados, o canal de cancelamento e o offset de retomada.
type RecipientLink struct {
	// Data transporta as RelayMessage; o sender é o único produtor.
	Data chan RelayMessage
	// Cancel sinaliza que o recipient saiu. Capacidade 1: um sinal
	// pendente basta, envios extras são descartados.
	Cancel chan struct{}
	// ResumeOffset é o byte a partir do qual o recipient quer continuar.
	// O relay repassa o valor ao sender sem validar.
	ResumeOffset uint64
}

// NewRecipientLink cria um link com filas novas.
func NewRecipientLink(resumeOffset uint64) RecipientLink {
	return RecipientLink{
		Data:         make(chan RelayMessage, DataQueueDepth),
		Cancel:       make(chan struct{}, 1),
		ResumeOffset: resumeOffset,
	}
}

// SignalCancel avisa o sender que o consumidor saiu. Nunca bloqueia.
func (l RecipientLink) SignalCancel() {
	select {
	case l.Cancel <- struct{}{}:
	default:
	}
}

// Entry é o registro de um transfer na tabela. Waiting e Reconnecting
// carregam os canais de rendezvous; Active e Done são apenas marcadores.
// Uma Entry publicada na tabela é imutável: transições de estado são
// expressas trocando a entry inteira via Take + Put.
type Entry struct {
	Metadata  protocol.FileMetadata
	State     EntryState
	CreatedAt time.Time

	claim chan RecipientLink

	// mu serializa Publish e Abandon. Um select com o envio bufferizado
	// de um lado e um canal fechado do outro escolheria qualquer um dos
	// dois quando ambos estão prontos, e o recipient ganharia um claim
	// de um sender que já desistiu.
	mu        sync.Mutex
	abandoned bool
}

// newClaimableEntry cria uma entry com rendezvous pendente (Waiting ou
// Reconnecting). O sender aguarda em e.claim; o recipient publica nele.
func newClaimableEntry(md protocol.FileMetadata, state EntryState) *Entry {
	return &Entry{
		Metadata:  md,
		State:     state,
		CreatedAt: time.Now(),
		claim:     make(chan RecipientLink, 1),
	}
}

// newMarkerEntry cria uma entry sem rendezvous (Active ou Done).
func newMarkerEntry(md protocol.FileMetadata, state EntryState) *Entry {
	return &Entry{
		Metadata:  md,
		State:     state,
		CreatedAt: time.Now(),
	}
}

// Claimable indica se um recipient pode se anexar a esta entry.
func (e *Entry) Claimable() bool {
	return e.State == StateWaiting || e.State == StateReconnecting
}

// Publish entrega o link ao sender que aguarda nesta entry. Retorna false
// se o sender já desistiu (Abandon) — nesse caso o link não foi consumido
// e o recipient deve encerrar com erro.
func (e *Entry) Publish(link RecipientLink) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.abandoned {
		return false
	}
	// O Take exclusivo garante no máximo um publisher por entry, então o
	// buffer de 1 nunca está cheio aqui e o envio não bloqueia.
	e.claim <- link
	return true
}

// Abandon marca que o sender desistiu desta entry sem consumir o claim.
// Depois do Abandon nenhum Publish sucede. Uma publicação que já tenha
// entrado na fila é drenada e o link é fechado, para que o recipient
// bloqueado na fila observe a queda do produtor em vez de esperar para
// sempre.
func (e *Entry) Abandon() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.abandoned {
		return
	}
	e.abandoned = true
	select {
	case link := <-e.claim:
		close(link.Data)
	default:
	}
}

// Registry é a tabela concorrente de transfers, o único estado compartilhado
// do relay. Toda mutação passa por Take + Put: ler uma entry e decidir em
// cima dela sem removê-la antes abriria corrida com outro claim. A remoção
// atômica é o que expressa "agora o dono sou eu".
type Registry struct {
	entries sync.Map // TransferId → *Entry
}

// NewRegistry cria uma tabela vazia.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register insere uma entry nova. Retorna false se o id já existe — o
// chamador deve gerar outro id e tentar de novo.
func (r *Registry) Register(id string, e *Entry) bool {
	_, loaded := r.entries.LoadOrStore(id, e)
	return !loaded
}

// Take remove e retorna a entry de forma atômica. Quem recebeu true é o
// único dono da entry a partir daqui. Um segundo Take do mesmo id falha:
// é isso que garante no máximo um claim por transfer.
func (r *Registry) Take(id string) (*Entry, bool) {
	v, loaded := r.entries.LoadAndDelete(id)
	if !loaded {
		return nil, false
	}
	return v.(*Entry), true
}

// Put insere incondicionalmente, substituindo o que houver. Usado pelo
// sender para publicar o próximo estado de uma entry que ele tomou.
func (r *Registry) Put(id string, e *Entry) {
	r.entries.Store(id, e)
}

// Remove descarta a entry sem retorná-la.
func (r *Registry) Remove(id string) {
	r.entries.Delete(id)
}

// Peek retorna a entry sem removê-la. Serve apenas para consulta (endpoint
// de metadata, página de download) — nunca como base para mutação.
func (r *Registry) Peek(id string) (*Entry, bool) {
	v, ok := r.entries.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*Entry), true
}

// Sweep remove as entries em estado Done e retorna quantas saíram.
// CompareAndDelete compara a identidade da entry: um Put concorrente do
// sender entre o Range e o delete nunca é perdido.
func (r *Registry) Sweep() int {
	removed := 0
	r.entries.Range(func(key, value any) bool {
		if value.(*Entry).State == StateDone {
			if r.entries.CompareAndDelete(key, value) {
				removed++
			}
		}
		return true
	})
	return removed
}

// Len conta as entries presentes na tabela.
func (r *Registry) Len() int {
	n := 0
	r.entries.Range(func(any, any) bool {
		n++
		return true
	})
	return n
}
