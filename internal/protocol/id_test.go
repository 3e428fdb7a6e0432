// Copyright (c) 2026 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Transfer License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package protocol

import (
	"strings"
	"testing"
)

func TestNewTransferID_Length(t *testing.T) {
	id := NewTransferID()
	if len(id) != IDLength {
		t.Fatalf("expected id of %d chars, got %d (%q)", IDLength, len(id), id)
	}
}

func TestNewTransferID_Alphabet(t *testing.T) {
	for i := 0; i < 100; i++ {
		id := NewTransferID()
		for _, c := range id {
			if !strings.ContainsRune(idAlphabet, c) {
				t.Fatalf("id %q contains char %q outside the URL-safe alphabet", id, c)
			}
		}
	}
}

func TestNewTransferID_Unique(t *testing.T) {
	seen := make(map[string]bool, 1000)
	for i := 0; i < 1000; i++ {
		id := NewTransferID()
		if seen[id] {
			t.Fatalf("duplicate id generated: %q", id)
		}
		seen[id] = true
	}
}
