// Copyright (c) 2026 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Transfer License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package share

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
)

const (
	// KeySize é o tamanho da chave AES-256 gerada por arquivo.
	KeySize = 32

	nonceSize = 12
)

var ErrSealedTooShort = errors.New("share: sealed chunk shorter than nonce plus tag")

// NewKey gera uma chave simétrica nova. A chave vive só na memória do
// processo e no fragment da URL impressa; nunca toca disco ou logs.
func NewKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generating share key: %w", err)
	}
	return key, nil
}

// ChunkSealer sela chunks com AES-256-GCM. Cada chunk ganha um nonce de
// 12 bytes novo, prefixado ao ciphertext, então chunks podem ser abertos
// em qualquer ordem desde que inteiros.
type ChunkSealer struct {
	aead cipher.AEAD
}

// NewChunkSealer monta o sealer a partir de uma chave de 32 bytes.
func NewChunkSealer(key []byte) (*ChunkSealer, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("share: key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("share: creating cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("share: creating GCM: %w", err)
	}
	return &ChunkSealer{aead: aead}, nil
}

// Seal retorna nonce || ciphertext+tag para o chunk dado.
func (cs *ChunkSealer) Seal(plain []byte) ([]byte, error) {
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("share: generating nonce: %w", err)
	}
	return cs.aead.Seal(nonce, nonce, plain, nil), nil
}

// Open desfaz Seal. Qualquer byte alterado falha na verificação do tag.
func (cs *ChunkSealer) Open(sealed []byte) ([]byte, error) {
	if len(sealed) < nonceSize+cs.aead.Overhead() {
		return nil, ErrSealedTooShort
	}
	plain, err := cs.aead.Open(nil, sealed[:nonceSize], sealed[nonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("share: opening chunk: %w", err)
	}
	return plain, nil
}
