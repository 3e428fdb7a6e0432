// Copyright (c) 2026 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Transfer License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package protocol

import "crypto/rand"

// idAlphabet tem 64 símbolos URL-safe; como 64 divide 256, o mapeamento
// byte&63 → símbolo é uniforme (sem viés de módulo).
const idAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789_-"

// IDLength é o comprimento dos ids de transfer e tokens de share.
const IDLength = 12

// NewTransferID gera um id aleatório de 12 caracteres URL-safe.
// Com 64^12 combinações, colisões são desprezíveis; o registry ainda
// assim re-sorteia no caso (astronomicamente improvável) de duplicata.
func NewTransferID() string {
	b := make([]byte, IDLength)
	rand.Read(b)
	for i, c := range b {
		b[i] = idAlphabet[c&63]
	}
	return string(b)
}

// ValidTransferID informa se s tem a forma de um id gerado por NewTransferID.
// O staging valida ids recebidos em URLs antes de montar qualquer path: um
// id que não passa aqui nunca chega ao filesystem nem ao object store.
func ValidTransferID(s string) bool {
	if len(s) != IDLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z':
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		case c == '_' || c == '-':
		default:
			return false
		}
	}
	return true
}
