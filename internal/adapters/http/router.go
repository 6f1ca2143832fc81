package httpadapter

import (
	"encoding/json"
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/kirillkom/pdf-summarizer/internal/adapters/http/openapi"
	"github.com/kirillkom/pdf-summarizer/internal/config"
	"github.com/kirillkom/pdf-summarizer/internal/core/domain"
	"github.com/kirillkom/pdf-summarizer/internal/core/ports"
	"github.com/kirillkom/pdf-summarizer/internal/observability/metrics"
)

const (
	uploadField = "pdf"
	// Parts above this size spill to disk while the multipart form is parsed.
	multipartMemory = 8 << 20
)

type Router struct {
	cfg        config.Config
	summarizer ports.DocumentSummarizer
	status     ports.EngineStatus
	metrics    *metrics.HTTPServerMetrics
}

func NewRouter(
	cfg config.Config,
	summarizer ports.DocumentSummarizer,
	status ports.EngineStatus,
	httpMetrics *metrics.HTTPServerMetrics,
) *Router {
	return &Router{
		cfg:        cfg,
		summarizer: summarizer,
		status:     status,
		metrics:    httpMetrics,
	}
}

func (rt *Router) Handler() http.Handler {
	guarded := http.NewServeMux()
	guarded.HandleFunc("/summarize", rt.summarize)

	var limited http.Handler = guarded
	limited = backpressureMiddleware(limited, rt.cfg.APIMaxInFlight, rt.cfg.APIBackpressureWait)
	limited = rateLimitMiddleware(limited, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", rt.health)
	mux.HandleFunc("/openapi.yaml", rt.openAPI)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}
	mux.Handle("/", limited)

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(handler)
	}
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	return recoverMiddleware(handler)
}

func (rt *Router) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	loaded := rt.status != nil && rt.status.Loaded()
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "model_loaded": loaded})
}

func (rt *Router) openAPI(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(openapi.Raw())
}

func (rt *Router) summarize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if rt.cfg.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, rt.cfg.MaxUploadBytes)
	}

	upload, err := rt.readUpload(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, domain.MsgFileTooLarge)
			return
		}
		slog.Warn("multipart_parse_failed", "error", err)
		writeError(w, http.StatusBadRequest, domain.MsgNoFile)
		return
	}
	if r.MultipartForm != nil {
		defer func() {
			_ = r.MultipartForm.RemoveAll()
		}()
	}
	if upload != nil {
		if closer, ok := upload.Body.(multipart.File); ok {
			defer closer.Close()
		}
	}

	summary, err := rt.summarizer.Summarize(r.Context(), upload)
	if err != nil {
		writeError(w, mapErrorToHTTPStatus(err), domain.ClientMessage(err))
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// readUpload returns a nil upload when the request carries no file part. A
// part named pdf without a filename is reported as an upload with an empty
// name.
func (rt *Router) readUpload(r *http.Request) (*domain.UploadedDocument, error) {
	err := r.ParseMultipartForm(multipartMemory)
	switch {
	case errors.Is(err, http.ErrNotMultipart), errors.Is(err, http.ErrMissingBoundary):
		return nil, nil
	case err != nil:
		return nil, err
	}

	file, header, err := r.FormFile(uploadField)
	if errors.Is(err, http.ErrMissingFile) {
		if values := r.MultipartForm.Value[uploadField]; len(values) > 0 {
			return &domain.UploadedDocument{Size: int64(len(values[0])), Body: strings.NewReader(values[0])}, nil
		}
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if rt.cfg.MaxUploadBytes > 0 && header.Size > rt.cfg.MaxUploadBytes {
		_ = file.Close()
		return nil, &http.MaxBytesError{Limit: rt.cfg.MaxUploadBytes}
	}

	return &domain.UploadedDocument{
		Filename: header.Filename,
		MimeType: header.Header.Get("Content-Type"),
		Size:     header.Size,
		Body:     file,
	}, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
