package mockbackend

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"boletodesk/internal/logging"
	"boletodesk/internal/records"
)

// Default operator credentials seeded into every server.
const (
	DefaultEmail    = "operador@example.com"
	DefaultPassword = "operador"
)

type account struct {
	user     records.User
	password string
}

type document struct {
	rec         records.CollectionDocument
	fields      DocumentFields
	noteID      string
	data        []byte
	contentType string
}

type note struct {
	rec         records.FiscalNote
	data        []byte
	contentType string
}

type operation struct {
	rec       records.Operation
	fidc      records.Fidc
	docs      []*document
	notes     []*note
	sends     []*records.SendRecord
	processed bool
}

// Server holds the in-memory backend state.
type Server struct {
	mu       sync.Mutex
	logger   *slog.Logger
	secret   []byte
	tokenTTL time.Duration
	now      func() time.Time

	accounts map[string]account
	fidcs    []records.Fidc
	ops      map[string]*operation
	created  int

	collect CollectionExtractor
	fiscal  FiscalExtractor

	failures map[string][]int
	calls    map[string]int
	mailbox  map[string]bool
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSecret sets the HMAC key used to sign access tokens.
func WithSecret(secret []byte) Option {
	return func(s *Server) {
		if len(secret) > 0 {
			s.secret = secret
		}
	}
}

// WithTokenTTL sets the lifetime of issued access tokens.
func WithTokenTTL(ttl time.Duration) Option {
	return func(s *Server) {
		if ttl > 0 {
			s.tokenTTL = ttl
		}
	}
}

// WithCollectionExtractor replaces the collection extractor.
func WithCollectionExtractor(fn CollectionExtractor) Option {
	return func(s *Server) {
		if fn != nil {
			s.collect = fn
		}
	}
}

// WithFiscalExtractor replaces the fiscal extractor.
func WithFiscalExtractor(fn FiscalExtractor) Option {
	return func(s *Server) {
		if fn != nil {
			s.fiscal = fn
		}
	}
}

// WithAccount adds an operator account.
func WithAccount(name, email, password string) Option {
	return func(s *Server) {
		s.accounts[email] = account{
			user:     records.User{ID: uuid.NewString(), Name: name, Email: email, Active: true},
			password: password,
		}
	}
}

// New creates a seeded server.
func New(opts ...Option) *Server {
	s := &Server{
		logger:   logging.NewNop(),
		secret:   []byte(uuid.NewString()),
		tokenTTL: 8 * time.Hour,
		now:      time.Now,
		accounts: map[string]account{},
		ops:      map[string]*operation{},
		collect:  ExtractCollection,
		fiscal:   ExtractFiscal,
		failures: map[string][]int{},
		calls:    map[string]int{},
		mailbox:  map[string]bool{},
	}
	s.accounts[DefaultEmail] = account{
		user:     records.User{ID: uuid.NewString(), Name: "Operador", Email: DefaultEmail, Active: true},
		password: DefaultPassword,
	}
	s.fidcs = seedFidcs()
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func seedFidcs() []records.Fidc {
	seed := []struct{ name, full, color string }{
		{"CAPITAL", "CAPITAL RS FIDC NP MULTISSETORIAL", "#0e639c"},
		{"NOVAX", "Novax Fundo de Investimento em Direitos Creditórios", "#107c10"},
		{"CREDVALE", "CREDVALE FUNDO DE INVESTIMENTO EM DIREITOS CREDITORIOS MULTISSETORIAL", "#d83b01"},
		{"SQUID", "SQUID FUNDO DE INVESTIMENTO EM DIREITOS CREDITORIOS", "#8764b8"},
	}
	out := make([]records.Fidc, 0, len(seed))
	for _, f := range seed {
		out = append(out, records.Fidc{
			ID:       uuid.NewString(),
			Name:     f.name,
			FullName: f.full,
			CCEmails: []string{"cobranca@example.com"},
			Color:    f.color,
			Active:   true,
		})
	}
	return out
}

// Fidcs returns the seeded funds.
func (s *Server) Fidcs() []records.Fidc {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]records.Fidc(nil), s.fidcs...)
}

// FailNext makes the next call to route ("METHOD /pattern", relative to
// /api/v1) answer with status instead of running the handler.
func (s *Server) FailNext(route string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[route] = append(s.failures[route], status)
}

// Calls reports how many requests reached route, failed ones included.
func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

// DeliverToMailbox records that a message with subject reached the sent
// folder, so a later verification promotes its draft to sent.
func (s *Server) DeliverToMailbox(subject string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mailbox[subject] = true
}

// Handler returns the HTTP surface rooted at /api/v1.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Route("/api/v1", func(r chi.Router) {
		s.handle(r, http.MethodPost, "/auth/login", s.handleLogin)
		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)
			s.handle(r, http.MethodGet, "/fidcs", s.handleListFidcs)
			s.handle(r, http.MethodPost, "/operacoes", s.handleCreateOperation)
			s.handle(r, http.MethodGet, "/operacoes", s.handleListOperations)
			s.handle(r, http.MethodGet, "/operacoes/{id}", s.handleGetOperation)
			s.handle(r, http.MethodPatch, "/operacoes/{id}", s.handleUpdateOperation)
			s.handle(r, http.MethodDelete, "/operacoes/{id}", s.handleDeleteOperation)
			s.handle(r, http.MethodPost, "/operacoes/{id}/boletos/upload", s.handleUploadCollection)
			s.handle(r, http.MethodPost, "/operacoes/{id}/xmls/upload", s.handleUploadFiscal)
			s.handle(r, http.MethodPatch, "/operacoes/{id}/xmls/{xmlId}/emails", s.handleUpdateEmails)
			s.handle(r, http.MethodPost, "/operacoes/{id}/processar", s.handleProcess)
			s.handle(r, http.MethodPost, "/operacoes/{id}/reprocessar", s.handleReprocess)
			s.handle(r, http.MethodPost, "/operacoes/{id}/finalizar", s.handleFinalize)
			s.handle(r, http.MethodPost, "/operacoes/{id}/cancelar", s.handleCancel)
			s.handle(r, http.MethodGet, "/operacoes/{id}/preview-envio", s.handleSendPreview)
			s.handle(r, http.MethodPost, "/operacoes/{id}/enviar", s.handleSend)
			s.handle(r, http.MethodGet, "/operacoes/{id}/envios", s.handleListSends)
			s.handle(r, http.MethodPatch, "/operacoes/{id}/envios/{envioId}/status", s.handleSendStatus)
			s.handle(r, http.MethodPost, "/operacoes/{id}/envios/verificar-status", s.handleVerifySends)
			s.handle(r, http.MethodGet, "/operacoes/{id}/boletos/{docId}/arquivo", s.handleDocumentFile)
			s.handle(r, http.MethodGet, "/operacoes/{id}/xmls/{docId}/arquivo", s.handleNoteFile)
		})
	})
	return r
}

func (s *Server) handle(r chi.Router, method, pattern string, h http.HandlerFunc) {
	route := method + " " + pattern
	r.Method(method, pattern, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		s.mu.Lock()
		s.calls[route]++
		var status int
		if queued := s.failures[route]; len(queued) > 0 {
			status = queued[0]
			s.failures[route] = queued[1:]
		}
		s.mu.Unlock()
		if status != 0 {
			writeError(w, status, "injected failure")
			return
		}
		h(w, req)
	}))
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("mock backend request",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Int("status", ww.Status()),
			logging.Duration("latency", time.Since(start)),
			logging.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// lookup returns the operation addressed by the {id} URL parameter, writing
// a 404 when it does not exist. The caller holds s.mu.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) *operation {
	op := s.ops[chi.URLParam(r, "id")]
	if op == nil {
		writeError(w, http.StatusNotFound, "Operacao nao encontrada")
	}
	return op
}
