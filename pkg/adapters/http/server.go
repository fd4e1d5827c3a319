package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strconv"

	"github.com/aretw0/chatflow/internal/logging"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/ports"
	"github.com/aretw0/chatflow/pkg/protocol"
	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"
)

const (
	// DefaultMaxUploadBytes caps uploads accepted by the server.
	DefaultMaxUploadBytes = 10 << 20

	defaultMessageRate  = rate.Limit(5)
	defaultMessageBurst = 10

	// multipart framing allowance on top of the file itself
	formOverhead = 1 << 20
)

// Server exposes a ports.Backend as the collaborator API.
type Server struct {
	backend   ports.Backend
	logger    *slog.Logger
	hooks     domain.LifecycleHooks
	metrics   *Metrics
	observe   domain.LifecycleHooks
	publicURL string
	reviewURL string
	maxUpload int64
	maxInput  int
	msgRate   rate.Limit
	msgBurst  int
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithHooks registers chat lifecycle callbacks.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(s *Server) {
		s.hooks = hooks
	}
}

// WithMetrics records chat events and serves them at /metrics.
func WithMetrics(m *Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithPublicURL sets the externally visible base URL used in download links.
func WithPublicURL(base string) Option {
	return func(s *Server) {
		s.publicURL = base
	}
}

// WithReviewURL makes chat sessions end with a review prompt.
func WithReviewURL(u string) Option {
	return func(s *Server) {
		s.reviewURL = u
	}
}

// WithMaxUploadBytes overrides DefaultMaxUploadBytes.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) {
		s.maxUpload = n
	}
}

// WithMaxInputBytes caps the size of one visitor chat message.
func WithMaxInputBytes(n int) Option {
	return func(s *Server) {
		s.maxInput = n
	}
}

// WithMessageRate limits inbound chat messages per connection.
func WithMessageRate(r rate.Limit, burst int) Option {
	return func(s *Server) {
		s.msgRate = r
		s.msgBurst = burst
	}
}

// NewHandler creates the HTTP handler for the collaborator API.
func NewHandler(backend ports.Backend, opts ...Option) http.Handler {
	s := &Server{
		backend:   backend,
		logger:    logging.NewNop(),
		maxUpload: DefaultMaxUploadBytes,
		maxInput:  protocol.DefaultMaxInputBytes,
		msgRate:   defaultMessageRate,
		msgBurst:  defaultMessageBurst,
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, s.logger, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.metrics != nil {
		s.observe = s.metrics.Hooks()
		r.Handle("/metrics", s.metrics.Handler())
	}
	r.Get("/ws", s.Chat)
	r.Route("/apps/{appID}", func(r chi.Router) {
		r.Get("/questions", s.ListQuestions)
		r.Post("/questions", s.CreateQuestion)
		r.Patch("/questions/{id}", s.UpdateQuestion)
		r.Delete("/questions/{id}", s.DeleteQuestion)
		r.Get("/questions/{id}/attachment", s.GetAttachment)
		r.Post("/questions/{id}/attachment", s.UploadAttachment)
		r.Delete("/questions/{id}/attachment", s.DeleteAttachment)
		r.Get("/flows", s.ListGrouped)
		r.Get("/plans", s.ListPlans)
		r.Put("/plans", s.UpsertPlans)
		r.Post("/uploads", s.Upload)
		r.Get("/uploads/{fileID}", s.Download)
	})
	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ListQuestions handles GET /apps/{appID}/questions.
func (s *Server) ListQuestions(w http.ResponseWriter, r *http.Request) {
	qs, err := s.backend.ListQuestions(r.Context(), chi.URLParam(r, "appID"))
	if err != nil {
		s.fail(w, "ListQuestions", err)
		return
	}
	writeJSON(w, s.logger, http.StatusOK, qs)
}

// ListGrouped handles GET /apps/{appID}/flows.
func (s *Server) ListGrouped(w http.ResponseWriter, r *http.Request) {
	flows, err := s.backend.ListGrouped(r.Context(), chi.URLParam(r, "appID"))
	if err != nil {
		s.fail(w, "ListGrouped", err)
		return
	}
	writeJSON(w, s.logger, http.StatusOK, flows)
}

// CreateQuestion handles POST /apps/{appID}/questions.
func (s *Server) CreateQuestion(w http.ResponseWriter, r *http.Request) {
	var q domain.Question
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		s.logger.Warn("CreateQuestion: Invalid request body", "err", err)
		return
	}
	q.AppID = chi.URLParam(r, "appID")
	created, err := s.backend.CreateQuestion(r.Context(), q)
	if err != nil {
		s.fail(w, "CreateQuestion", err)
		return
	}
	writeJSON(w, s.logger, http.StatusCreated, created)
}

// UpdateQuestion handles PATCH /apps/{appID}/questions/{id}.
func (s *Server) UpdateQuestion(w http.ResponseWriter, r *http.Request) {
	var patch domain.QuestionPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		s.logger.Warn("UpdateQuestion: Invalid request body", "err", err)
		return
	}
	q, err := s.backend.UpdateQuestion(r.Context(), chi.URLParam(r, "appID"), chi.URLParam(r, "id"), patch)
	if err != nil {
		s.fail(w, "UpdateQuestion", err)
		return
	}
	writeJSON(w, s.logger, http.StatusOK, q)
}

// DeleteQuestion handles DELETE /apps/{appID}/questions/{id}.
func (s *Server) DeleteQuestion(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.DeleteQuestion(r.Context(), chi.URLParam(r, "appID"), chi.URLParam(r, "id")); err != nil {
		s.fail(w, "DeleteQuestion", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListPlans handles GET /apps/{appID}/plans.
func (s *Server) ListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := s.backend.ListPlans(r.Context(), chi.URLParam(r, "appID"))
	if err != nil {
		s.fail(w, "ListPlans", err)
		return
	}
	writeJSON(w, s.logger, http.StatusOK, plans)
}

// UpsertPlans handles PUT /apps/{appID}/plans.
func (s *Server) UpsertPlans(w http.ResponseWriter, r *http.Request) {
	var in []domain.PlanInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		s.logger.Warn("UpsertPlans: Invalid request body", "err", err)
		return
	}
	plans, err := s.backend.UpsertPlans(r.Context(), chi.URLParam(r, "appID"), in)
	if err != nil {
		s.fail(w, "UpsertPlans", err)
		return
	}
	writeJSON(w, s.logger, http.StatusOK, plans)
}

// UploadAttachment handles POST /apps/{appID}/questions/{id}/attachment.
func (s *Server) UploadAttachment(w http.ResponseWriter, r *http.Request) {
	file, closeFile, ok := s.readUpload(w, r)
	if !ok {
		return
	}
	defer closeFile()
	att, err := s.backend.UploadAttachment(r.Context(), chi.URLParam(r, "appID"), chi.URLParam(r, "id"), file)
	if err != nil {
		s.fail(w, "UploadAttachment", err)
		return
	}
	writeJSON(w, s.logger, http.StatusOK, att)
}

// GetAttachment handles GET /apps/{appID}/questions/{id}/attachment.
func (s *Server) GetAttachment(w http.ResponseWriter, r *http.Request) {
	meta, rc, err := s.backend.GetAttachment(r.Context(), chi.URLParam(r, "appID"), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, "GetAttachment", err)
		return
	}
	defer rc.Close()
	s.serveFile(w, meta, rc)
}

// DeleteAttachment handles DELETE /apps/{appID}/questions/{id}/attachment.
func (s *Server) DeleteAttachment(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.DeleteAttachment(r.Context(), chi.URLParam(r, "appID"), chi.URLParam(r, "id")); err != nil {
		s.fail(w, "DeleteAttachment", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Upload handles POST /apps/{appID}/uploads, the chat upload side channel.
func (s *Server) Upload(w http.ResponseWriter, r *http.Request) {
	file, closeFile, ok := s.readUpload(w, r)
	if !ok {
		return
	}
	defer closeFile()
	up, err := s.backend.PutFile(r.Context(), chi.URLParam(r, "appID"), file)
	if err != nil {
		s.fail(w, "Upload", err)
		return
	}
	writeJSON(w, s.logger, http.StatusCreated, up)
}

// Download handles GET /apps/{appID}/uploads/{fileID}.
func (s *Server) Download(w http.ResponseWriter, r *http.Request) {
	meta, rc, err := s.backend.GetFile(r.Context(), chi.URLParam(r, "appID"), chi.URLParam(r, "fileID"))
	if err != nil {
		s.fail(w, "Download", err)
		return
	}
	defer rc.Close()
	s.serveFile(w, meta, rc)
}

func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (domain.File, func(), bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload+formOverhead)
	f, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, domain.ErrFileTooLarge.Error(), http.StatusRequestEntityTooLarge)
			return domain.File{}, nil, false
		}
		http.Error(w, "Missing file", http.StatusBadRequest)
		s.logger.Warn("upload: invalid form", "err", err)
		return domain.File{}, nil, false
	}
	if header.Size > s.maxUpload {
		f.Close()
		http.Error(w, domain.ErrFileTooLarge.Error(), http.StatusRequestEntityTooLarge)
		return domain.File{}, nil, false
	}
	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	file := domain.File{
		Filename:    header.Filename,
		ContentType: contentType,
		Size:        header.Size,
		Content:     f,
	}
	return file, func() { f.Close() }, true
}

func (s *Server) serveFile(w http.ResponseWriter, meta domain.UploadedFile, body io.Reader) {
	w.Header().Set("Content-Type", meta.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": meta.Filename}))
	w.Header().Set("Content-Length", strconv.FormatInt(meta.Size, 10))
	w.Header().Set(fileIDHeader, meta.FileID)
	if _, err := io.Copy(w, body); err != nil {
		s.logger.Warn("file copy failed", "file_id", meta.FileID, "err", err)
	}
}

func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case domain.IsValidation(err):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, fmt.Sprintf("%s error: %v", op, err), http.StatusInternalServerError)
		s.logger.Error(op+" failed", "err", err)
	}
}

func (s *Server) attachmentURL(appID, questionID string) string {
	return s.publicURL + "/apps/" + url.PathEscape(appID) + "/questions/" + url.PathEscape(questionID) + "/attachment"
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("response encode failed", "err", err)
	}
}
