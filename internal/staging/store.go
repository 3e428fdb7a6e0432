// Copyright (c) 2026 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Transfer License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package staging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/nishisan-dev/n-transfer/internal/protocol"
)

// ErrNotFound indica que o id não tem manifest no store.
var ErrNotFound = errors.New("staged transfer not found")

// ChunkStore abstrai onde os chunks e manifests vivem. As implementações
// são DiskStore e S3Store; a escolha vem de staging.store na configuração.
// Chunks são numerados a partir de 1 e gravados na ordem de chegada.
type ChunkStore interface {
	SaveManifest(ctx context.Context, m *Manifest) error
	LoadManifest(ctx context.Context, id string) (*Manifest, error)
	AppendChunk(ctx context.Context, id string, seq int, data []byte) error
	OpenChunk(ctx context.Context, id string, seq int) (io.ReadCloser, error)
	// Delete remove manifest e todos os chunks do id.
	Delete(ctx context.Context, id string) error
	// List retorna os ids que possuem manifest.
	List(ctx context.Context) ([]string, error)
}

const (
	manifestName = "manifest.json"
	chunkSubdir  = "chunks"
)

// chunkName formata o nome do chunk de número seq (1-based).
func chunkName(seq int) string {
	return fmt.Sprintf("%08d.part", seq)
}

// DiskStore guarda cada transfer em {baseDir}/{id}/ com manifest.json e os
// chunks numerados ao lado.
type DiskStore struct {
	baseDir string
}

// NewDiskStore cria (se preciso) o diretório base e retorna o store.
func NewDiskStore(baseDir string) (*DiskStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("creating staging base dir %s: %w", baseDir, err)
	}
	return &DiskStore{baseDir: baseDir}, nil
}

// dir monta o diretório do id, recusando ids fora do formato esperado para
// que nenhum valor vindo de URL escape do diretório base.
func (d *DiskStore) dir(id string) (string, error) {
	if !protocol.ValidTransferID(id) {
		return "", ErrNotFound
	}
	return filepath.Join(d.baseDir, id), nil
}

func (d *DiskStore) SaveManifest(ctx context.Context, m *Manifest) error {
	dir, err := d.dir(m.ID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating transfer dir: %w", err)
	}

	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}

	// Escrita em tmp + rename: um download concorrente nunca lê manifest
	// pela metade.
	tmp := filepath.Join(dir, manifestName+".tmp")
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(dir, manifestName)); err != nil {
		return fmt.Errorf("publishing manifest: %w", err)
	}
	return nil
}

func (d *DiskStore) LoadManifest(ctx context.Context, id string) (*Manifest, error) {
	dir, err := d.dir(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, manifestName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decoding manifest for %s: %w", id, err)
	}
	return &m, nil
}

func (d *DiskStore) AppendChunk(ctx context.Context, id string, seq int, data []byte) error {
	dir, err := d.dir(id)
	if err != nil {
		return err
	}
	chunkDir := filepath.Join(dir, chunkSubdir)
	if err := os.MkdirAll(chunkDir, 0755); err != nil {
		return fmt.Errorf("creating chunk dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(chunkDir, chunkName(seq)), data, 0644); err != nil {
		return fmt.Errorf("writing chunk %d: %w", seq, err)
	}
	return nil
}

func (d *DiskStore) OpenChunk(ctx context.Context, id string, seq int) (io.ReadCloser, error) {
	dir, err := d.dir(id)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(dir, chunkSubdir, chunkName(seq)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("opening chunk %d: %w", seq, err)
	}
	return f, nil
}

func (d *DiskStore) Delete(ctx context.Context, id string) error {
	dir, err := d.dir(id)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("removing staged transfer %s: %w", id, err)
	}
	return nil
}

func (d *DiskStore) List(ctx context.Context) ([]string, error) {
	dirEntries, err := os.ReadDir(d.baseDir)
	if err != nil {
		return nil, fmt.Errorf("listing staging dir: %w", err)
	}
	var ids []string
	for _, de := range dirEntries {
		if !de.IsDir() || !protocol.ValidTransferID(de.Name()) {
			continue
		}
		if _, err := os.Stat(filepath.Join(d.baseDir, de.Name(), manifestName)); err == nil {
			ids = append(ids, de.Name())
		}
	}
	return ids, nil
}
