// Package server exposes chat, document upload, policy checklist and
// notification endpoints over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"echodoc/internal/domain"
	"echodoc/internal/extract"
	"echodoc/internal/ingest"
	"echodoc/internal/notify"
	"echodoc/internal/policy"
)

type Conversation interface {
	Continue(ctx context.Context, history domain.History) (domain.History, error)
}

type Ingester interface {
	IngestFile(ctx context.Context, name string, data []byte) (ingest.Result, error)
}

type Checklister interface {
	Checklist(ctx context.Context, policyText string) ([]string, error)
}

type Deps struct {
	Conversation Conversation
	Ingester     Ingester
	Checklister  Checklister
	Extractor    domain.Extractor
	Notifier     domain.Notifier
	// UploadNotifier announces uploads; it defaults to Notifier.
	UploadNotifier domain.Notifier
	// AfterIngest runs after every successful upload, e.g. to persist the index.
	AfterIngest func() error
}

type Options struct {
	AllowedOrigins []string
	MaxUploadBytes int64
	// ChecklistPath receives the latest policy checklist; empty skips writing.
	ChecklistPath string
	ServiceName   string
}

type Server struct {
	deps    Deps
	opts    Options
	logger  *slog.Logger
	handler http.Handler
}

func New(deps Deps, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.Nop{}
	}
	if deps.UploadNotifier == nil {
		deps.UploadNotifier = deps.Notifier
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 32 << 20
	}
	if opts.ServiceName == "" {
		opts.ServiceName = "echodoc"
	}
	s := &Server{deps: deps, opts: opts, logger: logger}

	router := mux.NewRouter()
	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/chat", s.handleChat).Methods(http.MethodPost)
	router.HandleFunc("/upload", s.handleUpload).Methods(http.MethodPost)
	router.HandleFunc("/upload-policy", s.handleUploadPolicy).Methods(http.MethodPost)
	router.HandleFunc("/send", s.handleSend).Methods(http.MethodPost)

	s.handler = Chain(router,
		Recover(logger),
		OTel(opts.ServiceName),
		Logger(logger),
		CORS(opts.AllowedOrigins),
	)
	return s
}

func (s *Server) Handler() http.Handler { return s.handler }

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type chatPayload struct {
	Messages domain.History `json:"messages"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var payload chatPayload
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	for i, t := range payload.Messages {
		if !t.Role.Valid() {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("message %d has unknown role %q", i, t.Role))
			return
		}
	}
	updated, err := s.deps.Conversation.Continue(r.Context(), payload.Messages)
	if err != nil {
		s.fail(w, "chat failed", err)
		return
	}
	writeJSON(w, http.StatusOK, chatPayload{Messages: updated})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	name, data, ok := s.readUpload(w, r)
	if !ok {
		return
	}
	res, err := s.deps.Ingester.IngestFile(r.Context(), name, data)
	if err != nil {
		s.fail(w, "upload failed", err)
		return
	}
	if s.deps.AfterIngest != nil {
		if err := s.deps.AfterIngest(); err != nil {
			s.logger.Error("persist index failed", "error", err)
		}
	}
	_ = s.deps.UploadNotifier.Notify(r.Context(),
		fmt.Sprintf("Document %s uploaded: %d chunks indexed", name, res.Chunks))
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleUploadPolicy(w http.ResponseWriter, r *http.Request) {
	name, data, ok := s.readUpload(w, r)
	if !ok {
		return
	}
	if strings.ToLower(filepath.Ext(name)) != ".pdf" {
		writeError(w, http.StatusBadRequest, "only PDF files are supported for policy")
		return
	}
	text, err := s.deps.Extractor.Extract(r.Context(), name, data)
	if err != nil {
		s.fail(w, "policy extraction failed", err)
		return
	}
	items, err := s.deps.Checklister.Checklist(r.Context(), text)
	if err != nil {
		s.fail(w, "policy checklist failed", err)
		return
	}
	resp := map[string]any{"status": "success", "checklist": items}
	if s.opts.ChecklistPath != "" {
		if err := policy.WriteChecklist(s.opts.ChecklistPath, items); err != nil {
			s.fail(w, "save checklist failed", err)
			return
		}
		resp["message"] = "Checklist saved to " + s.opts.ChecklistPath
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if err := s.deps.Notifier.Notify(r.Context(), notify.Message(body.Message)); err != nil {
		s.logger.Error("send notification failed", "error", err)
		writeError(w, http.StatusBadGateway, "failed to send message")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// readUpload accepts a multipart "file" field or a raw text body named by the
// "name" query parameter.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (string, []byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "missing file field: "+err.Error())
			return "", nil, false
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			writeError(w, http.StatusBadRequest, "read upload: "+err.Error())
			return "", nil, false
		}
		return header.Filename, data, true
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read upload: "+err.Error())
		return "", nil, false
	}
	name := r.URL.Query().Get("name")
	if name == "" {
		name = "upload.txt"
	}
	return filepath.Base(name), data, true
}

func (s *Server) fail(w http.ResponseWriter, msg string, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(msg, "status", status, "error", err)
	} else {
		s.logger.Warn(msg, "status", status, "error", err)
	}
	writeError(w, status, err.Error())
}

// StatusFor maps domain errors to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrMissingUserTurn),
		errors.Is(err, domain.ErrInvalidConfig),
		errors.Is(err, extract.ErrUnsupportedFormat),
		errors.Is(err, policy.ErrEmptyPolicy):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrDimensionMismatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, domain.ErrEmbeddingProvider), errors.Is(err, domain.ErrCompletion):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
