// Copyright (c) 2026 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Transfer License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package protocol

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestParseSend_Valid(t *testing.T) {
	meta, err := ParseSend([]byte(`{"type":"send","filename":"relatorio.pdf","size":1048576,"mime_type":"application/pdf"}`))
	if err != nil {
		t.Fatalf("ParseSend: %v", err)
	}
	if meta.Filename != "relatorio.pdf" {
		t.Errorf("expected filename 'relatorio.pdf', got %q", meta.Filename)
	}
	if meta.Size != 1048576 {
		t.Errorf("expected size 1048576, got %d", meta.Size)
	}
	if meta.MimeType != "application/pdf" {
		t.Errorf("expected mime_type 'application/pdf', got %q", meta.MimeType)
	}
}

func TestParseSend_DefaultMimeType(t *testing.T) {
	meta, err := ParseSend([]byte(`{"type":"send","filename":"blob.bin","size":10}`))
	if err != nil {
		t.Fatalf("ParseSend: %v", err)
	}
	if meta.MimeType != DefaultMimeType {
		t.Errorf("expected default mime_type %q, got %q", DefaultMimeType, meta.MimeType)
	}
}

func TestParseSend_ZeroSize(t *testing.T) {
	// Size zero é válido: transfers vazios são suportados.
	meta, err := ParseSend([]byte(`{"type":"send","filename":"empty.txt","size":0}`))
	if err != nil {
		t.Fatalf("ParseSend: %v", err)
	}
	if meta.Size != 0 {
		t.Errorf("expected size 0, got %d", meta.Size)
	}
}

func TestParseSend_WrongType(t *testing.T) {
	_, err := ParseSend([]byte(`{"type":"ready","filename":"a.txt","size":1}`))
	if !errors.Is(err, ErrNotSend) {
		t.Fatalf("expected ErrNotSend, got %v", err)
	}
}

func TestParseSend_MissingFilename(t *testing.T) {
	_, err := ParseSend([]byte(`{"type":"send","size":1}`))
	if !errors.Is(err, ErrMissingFilename) {
		t.Fatalf("expected ErrMissingFilename, got %v", err)
	}
}

func TestParseSend_NonNumericSize(t *testing.T) {
	_, err := ParseSend([]byte(`{"type":"send","filename":"a.txt","size":"muitos"}`))
	if err == nil {
		t.Fatal("expected error for non-numeric size")
	}
}

func TestParseSend_NotJSON(t *testing.T) {
	_, err := ParseSend([]byte{0x00, 0x01, 0x02})
	if err == nil {
		t.Fatal("expected error for binary junk")
	}
}

func TestPeekType(t *testing.T) {
	if typ := PeekType([]byte(`{"type":"done"}`)); typ != TypeDone {
		t.Errorf("expected %q, got %q", TypeDone, typ)
	}
	if typ := PeekType([]byte(`garbage`)); typ != "" {
		t.Errorf("expected empty type for garbage, got %q", typ)
	}
}

func TestEncodeResume_CarriesOffset(t *testing.T) {
	var frame Resume
	if err := json.Unmarshal(EncodeResume(524288), &frame); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if frame.Type != TypeResume {
		t.Errorf("expected type %q, got %q", TypeResume, frame.Type)
	}
	if frame.Offset != 524288 {
		t.Errorf("expected offset 524288, got %d", frame.Offset)
	}
}

func TestEncodeError_WireText(t *testing.T) {
	data := EncodeError(ErrTextNotFoundOrClaimed)
	if !strings.Contains(string(data), `"error":"Transfer not found or already claimed"`) {
		t.Errorf("error frame missing literal wire text: %s", data)
	}
	var frame ErrorFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if frame.Type != TypeError {
		t.Errorf("expected type %q, got %q", TypeError, frame.Type)
	}
}

func TestEncodeMetadata_OmitsEmptyEncoding(t *testing.T) {
	meta := FileMetadata{Filename: "f.bin", Size: 42, MimeType: DefaultMimeType}

	plain := EncodeMetadata(meta, "")
	if strings.Contains(string(plain), "encoding") {
		t.Errorf("metadata without encoding should omit the field: %s", plain)
	}

	withEnc := EncodeMetadata(meta, "zstd")
	var frame Metadata
	if err := json.Unmarshal(withEnc, &frame); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if frame.Encoding != "zstd" {
		t.Errorf("expected encoding 'zstd', got %q", frame.Encoding)
	}
	if frame.Filename != "f.bin" || frame.Size != 42 {
		t.Errorf("metadata fields not carried: %+v", frame)
	}
}
