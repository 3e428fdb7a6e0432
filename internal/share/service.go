// Copyright (c) 2026 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Transfer License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package share implementa o modo de compartilhamento local do N-Transfer:
// o processo é dono dos arquivos e os serve direto do disco, cifrando por
// chunk no caminho WebSocket. Não existe spool nem registro persistente;
// tokens e chaves vivem só na memória do processo.
package share

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"sync"

	"github.com/nishisan-dev/n-transfer/internal/protocol"
)

// maxTokenAttempts limita as tentativas de gerar um token livre.
const maxTokenAttempts = 5

// SharedFile descreve um arquivo servido pelo processo. Key é a chave
// AES-256 impressa no fragment da URL; sealer é derivado dela uma vez.
type SharedFile struct {
	Token    string
	Path     string
	Filename string
	Size     uint64
	MimeType string
	Key      []byte

	sealer *ChunkSealer
}

// BrowserLink monta o link com a chave no fragment. O fragment nunca é
// enviado ao servidor pelo browser, então a chave não aparece em logs de
// acesso de nenhum lado.
func (f *SharedFile) BrowserLink(hostPort string) string {
	return fmt.Sprintf("http://%s/d/%s#%s", hostPort, f.Token,
		base64.RawURLEncoding.EncodeToString(f.Key))
}

// DirectLink monta o link de download direto (plaintext, para curl).
func (f *SharedFile) DirectLink(hostPort string) string {
	return fmt.Sprintf("http://%s/dl/%s", hostPort, f.Token)
}

// Service mantém a tabela token → arquivo compartilhado. Arquivos entram
// na partida do processo e a tabela só é lida depois.
type Service struct {
	logger   *slog.Logger
	encoding string

	files sync.Map
}

// NewService cria o serviço. encoding escolhe a compressão do caminho
// cifrado: "" (nenhuma), "gzip" ou "zstd".
func NewService(logger *slog.Logger, encoding string) (*Service, error) {
	if !ValidEncoding(encoding) {
		return nil, fmt.Errorf("share: unknown encoding %q", encoding)
	}
	return &Service{
		logger:   logger.With("component", "share"),
		encoding: encoding,
	}, nil
}

// Encoding retorna a compressão configurada para o caminho cifrado.
func (s *Service) Encoding() string {
	return s.encoding
}

// AddFile registra um arquivo local e gera token e chave para ele.
func (s *Service) AddFile(path string) (*SharedFile, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("share: resolving %s: %w", path, err)
	}
	fi, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("share: stat %s: %w", path, err)
	}
	if !fi.Mode().IsRegular() {
		return nil, fmt.Errorf("share: %s is not a regular file", path)
	}

	key, err := NewKey()
	if err != nil {
		return nil, err
	}
	sealer, err := NewChunkSealer(key)
	if err != nil {
		return nil, err
	}

	mimeType := mime.TypeByExtension(filepath.Ext(abs))
	if mimeType == "" {
		mimeType = protocol.DefaultMimeType
	}

	f := &SharedFile{
		Path:     abs,
		Filename: filepath.Base(abs),
		Size:     uint64(fi.Size()),
		MimeType: mimeType,
		Key:      key,
		sealer:   sealer,
	}

	for i := 0; i < maxTokenAttempts; i++ {
		token := protocol.NewTransferID()
		if _, loaded := s.files.LoadOrStore(token, f); !loaded {
			f.Token = token
			s.logger.Info("file shared", "token", token, "filename", f.Filename, "size", f.Size)
			return f, nil
		}
	}
	return nil, fmt.Errorf("share: could not allocate a token for %s", path)
}

// Lookup resolve um token para o arquivo compartilhado.
func (s *Service) Lookup(token string) (*SharedFile, bool) {
	v, ok := s.files.Load(token)
	if !ok {
		return nil, false
	}
	return v.(*SharedFile), true
}
