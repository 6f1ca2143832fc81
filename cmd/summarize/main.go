// Command summarize runs one PDF through the same pipeline as the API and
// prints the JSON result.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/kirillkom/pdf-summarizer/internal/bootstrap"
	"github.com/kirillkom/pdf-summarizer/internal/config"
	"github.com/kirillkom/pdf-summarizer/internal/core/domain"
	"github.com/kirillkom/pdf-summarizer/internal/observability/logging"
)

const serviceName = "pdfsum-cli"

func main() {
	path := flag.String("file", "", "path to the PDF to summarize")
	flag.Parse()

	cfg := config.Load()
	// Logs go to stderr so stdout carries only the result.
	slog.SetDefault(logging.New(os.Stderr, serviceName, cfg.LogLevel))

	if *path == "" {
		fmt.Fprintln(os.Stderr, "usage: summarize -file report.pdf")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, cfg, *path)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, cfg config.Config, path string) int {
	app, err := bootstrap.New(ctx, cfg, serviceName)
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		return 1
	}

	file, err := os.Open(path)
	if err != nil {
		return printResult(nil, domain.Fail(domain.ErrValidation, domain.MsgNoFile, err))
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return printResult(nil, domain.Fail(domain.ErrResource, "", err))
	}

	summary, err := app.Summarizer.Summarize(ctx, &domain.UploadedDocument{
		Filename: filepath.Base(path),
		MimeType: "application/pdf",
		Size:     info.Size(),
		Body:     file,
	})
	return printResult(summary, err)
}

func printResult(summary *domain.Summary, err error) int {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err != nil {
		_ = encoder.Encode(map[string]string{"error": domain.ClientMessage(err)})
		if domain.IsKind(err, domain.ErrValidation) || domain.IsKind(err, domain.ErrInsufficientText) {
			return 2
		}
		return 1
	}
	_ = encoder.Encode(summary)
	return 0
}
