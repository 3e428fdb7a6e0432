// Copyright (c) 2026 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Transfer License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package share

import (
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
)

// Encodings aceitos no caminho cifrado. O valor viaja no frame de
// metadata para o client saber o que desfazer depois de decifrar.
const (
	EncodingGzip = "gzip"
	EncodingZstd = "zstd"
)

// ChunkSize é o tamanho do chunk plaintext antes do seal (1 MiB).
const ChunkSize = 1 << 20

// ValidEncoding aceita vazio (sem compressão) e os dois modos suportados.
func ValidEncoding(s string) bool {
	return s == "" || s == EncodingGzip || s == EncodingZstd
}

// newCompressor cria um io.WriteCloser de compressão para o encoding.
func newCompressor(w io.Writer, encoding string) (io.WriteCloser, error) {
	switch encoding {
	case EncodingZstd:
		return zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	case EncodingGzip:
		gzWriter, err := pgzip.NewWriterLevel(w, pgzip.BestSpeed)
		if err != nil {
			return nil, fmt.Errorf("creating gzip writer: %w", err)
		}
		if err := gzWriter.SetConcurrency(1<<20, runtime.GOMAXPROCS(0)); err != nil {
			return nil, fmt.Errorf("configuring gzip concurrency: %w", err)
		}
		return gzWriter, nil
	default:
		return nil, fmt.Errorf("unknown encoding %q", encoding)
	}
}

// chunkingWriter acumula o stream em chunks de até size bytes e entrega
// cada chunk cheio ao emit. flush solta o resto parcial no fim. O slice
// passado ao emit referencia o buffer interno: quem recebe precisa
// consumir antes de retornar.
type chunkingWriter struct {
	buf  []byte
	n    int
	emit func([]byte) error
}

func newChunkingWriter(size int, emit func([]byte) error) *chunkingWriter {
	return &chunkingWriter{buf: make([]byte, size), emit: emit}
}

func (cw *chunkingWriter) Write(p []byte) (int, error) {
	total := 0
	for len(p) > 0 {
		if cw.n == len(cw.buf) {
			if err := cw.flush(); err != nil {
				return total, err
			}
		}
		n := copy(cw.buf[cw.n:], p)
		cw.n += n
		p = p[n:]
		total += n
	}
	return total, nil
}

func (cw *chunkingWriter) flush() error {
	if cw.n == 0 {
		return nil
	}
	chunk := cw.buf[:cw.n]
	cw.n = 0
	return cw.emit(chunk)
}

// StreamFile percorre o arquivo pelo pipeline de envio:
// disco → compressor opcional (gzip|zstd) → chunker de 1 MiB → seal por
// chunk → emit. Cada chamada de emit recebe um chunk já selado
// (nonce || ciphertext). O walk para no primeiro erro de emit, então um
// socket fechado no meio só interrompe esta sessão; o arquivo continua
// servível para o próximo download.
func StreamFile(f *SharedFile, encoding string, emit func(sealed []byte) error) error {
	file, err := os.Open(f.Path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", f.Path, err)
	}
	defer file.Close()

	chunker := newChunkingWriter(ChunkSize, func(chunk []byte) error {
		sealed, err := f.sealer.Seal(chunk)
		if err != nil {
			return err
		}
		return emit(sealed)
	})

	var sink io.Writer = chunker
	var compressor io.WriteCloser
	if encoding != "" {
		compressor, err = newCompressor(chunker, encoding)
		if err != nil {
			return err
		}
		sink = compressor
	}

	if _, err := io.Copy(sink, file); err != nil {
		if compressor != nil {
			compressor.Close()
		}
		return fmt.Errorf("streaming %s: %w", f.Filename, err)
	}

	// Fecha o compressor (flush + trailer) antes do flush final do chunker.
	if compressor != nil {
		if err := compressor.Close(); err != nil {
			return fmt.Errorf("closing compressor: %w", err)
		}
	}

	return chunker.flush()
}
