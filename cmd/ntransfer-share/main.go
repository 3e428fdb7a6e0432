// Copyright (c) 2026 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Transfer License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nishisan-dev/n-transfer/internal/config"
	"github.com/nishisan-dev/n-transfer/internal/logging"
	"github.com/nishisan-dev/n-transfer/internal/share"
)

func main() {
	port := flag.Int("port", 4015, "port to listen on")
	host := flag.String("host", "", "public hostname or IP for download links (required)")
	encoding := flag.String("encoding", "", "compress before encrypting: gzip | zstd (empty = none)")
	rateLimit := flag.String("rate-limit", "0", "direct download rate limit (\"10mb\" = 10 MB/s, \"0\" = unlimited)")
	logLevel := flag.String("log-level", "info", "log level: debug | info | warn | error")
	logFormat := flag.String("log-format", "text", "log format: text | json")
	flag.Parse()

	files := flag.Args()
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "usage: ntransfer-share [flags] FILE...")
		flag.PrintDefaults()
		os.Exit(2)
	}
	if *host == "" {
		fmt.Fprintln(os.Stderr, "error: -host is required to build download links")
		os.Exit(2)
	}

	rateRaw, err := config.ParseByteSize(*rateLimit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: invalid -rate-limit: %v\n", err)
		os.Exit(2)
	}

	logger, logCloser := logging.NewLogger(*logLevel, *logFormat, "")
	defer logCloser.Close()

	svc, err := share.NewService(logger, *encoding)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}

	// Porta 80 não aparece nos links impressos.
	hostPort := *host
	if *port != 80 {
		hostPort = fmt.Sprintf("%s:%d", *host, *port)
	}

	fmt.Println()
	for _, path := range files {
		f, err := svc.AddFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("  %s (%s)\n", f.Filename, formatSize(f.Size))
		fmt.Printf("  %s\n", f.BrowserLink(hostPort))
		fmt.Printf("  curl -OJ %s\n", f.DirectLink(hostPort))
		fmt.Println()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	srv := share.NewServer(svc, logger, rateRaw)
	if err := share.Run(ctx, fmt.Sprintf("0.0.0.0:%d", *port), srv); err != nil {
		logger.Error("share error", "error", err)
		os.Exit(1)
	}
}

// formatSize imprime o tamanho em unidade humana para a listagem de links.
func formatSize(bytes uint64) string {
	switch {
	case bytes < 1024:
		return fmt.Sprintf("%d B", bytes)
	case bytes < 1024*1024:
		return fmt.Sprintf("%.1f KB", float64(bytes)/1024)
	case bytes < 1024*1024*1024:
		return fmt.Sprintf("%.1f MB", float64(bytes)/(1024*1024))
	default:
		return fmt.Sprintf("%.2f GB", float64(bytes)/(1024*1024*1024))
	}
}
