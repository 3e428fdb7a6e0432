package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Control frame encode/parse helpers. Encode functions marshal fixed structs
// and cannot fail; they return the wire bytes directly.

var (
	ErrNotSend         = errors.New("protocol: first frame must be a send control message")
	ErrMissingFilename = errors.New("protocol: filename is required")
)

// envelope carries only the discriminator, for a cheap first-pass decode.
type envelope struct {
	Type string `json:"type"`
}

// PeekType extracts the "type" field of a text frame. Returns "" for
// frames that are not JSON objects with a type discriminator.
func PeekType(data []byte) string {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return ""
	}
	return env.Type
}

// ParseSend validates a send frame and normalizes it into FileMetadata.
// mime_type defaults to DefaultMimeType when omitted.
func ParseSend(data []byte) (FileMetadata, error) {
	var req SendRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return FileMetadata{}, fmt.Errorf("protocol: invalid send frame: %w", err)
	}
	if req.Type != TypeSend {
		return FileMetadata{}, ErrNotSend
	}
	if req.Filename == "" {
		return FileMetadata{}, ErrMissingFilename
	}
	mime := req.MimeType
	if mime == "" {
		mime = DefaultMimeType
	}
	return FileMetadata{Filename: req.Filename, Size: req.Size, MimeType: mime}, nil
}

func EncodeReady(id string) []byte {
	return mustMarshal(Ready{Type: TypeReady, ID: id})
}

func EncodeStart() []byte {
	return mustMarshal(Signal{Type: TypeStart})
}

func EncodePaused() []byte {
	return mustMarshal(Signal{Type: TypePaused})
}

func EncodeDone() []byte {
	return mustMarshal(Signal{Type: TypeDone})
}

func EncodeResume(offset uint64) []byte {
	return mustMarshal(Resume{Type: TypeResume, Offset: offset})
}

func EncodeCancelled(msg string) []byte {
	return mustMarshal(ErrorFrame{Type: TypeCancelled, Error: msg})
}

func EncodeError(msg string) []byte {
	return mustMarshal(ErrorFrame{Type: TypeError, Error: msg})
}

// EncodeMetadata builds the metadata frame sent to recipients. encoding is
// empty outside share mode and omitted from the JSON when empty.
func EncodeMetadata(meta FileMetadata, encoding string) []byte {
	return mustMarshal(Metadata{
		Type:     TypeMetadata,
		Filename: meta.Filename,
		Size:     meta.Size,
		MimeType: meta.MimeType,
		Encoding: encoding,
	})
}

// mustMarshal is safe here: every frame struct marshals without error.
func mustMarshal(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic("protocol: marshaling control frame: " + err.Error())
	}
	return data
}
