package server

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tokokita/stock-intake/internal/intake"
	"github.com/tokokita/stock-intake/internal/ledger"
)

// Controller is the ingestion flow the server exposes
type Controller interface {
	SubmitImage(filename string, data []byte, contentType string) error
	SubmitText(text string) error
	EditItem(id int, patch intake.ItemPatch) (intake.Item, error)
	RemoveItem(id int) error
	AddItem(name string, quantity, unitPrice float64) (intake.Item, error)
	ConfirmSubmit(ctx context.Context) (intake.CommitResult, error)
	Cancel() error
	Snapshot() intake.Snapshot
}

// LedgerBrowser is the read/seed surface the back office needs from the
// ledger store, alongside the commit path owned by the intake gateway.
type LedgerBrowser interface {
	PutProduct(product ledger.Product) error
	ListProducts() ([]*ledger.Product, error)
	ListEntries() ([]*ledger.Entry, error)
}

// Server handles HTTP requests for the intake back office
type Server struct {
	controller Controller
	ledger     LedgerBrowser
	basicAuth  BasicAuth
	maxUpload  int64
	mux        *http.ServeMux
}

// BasicAuth holds basic authentication credentials
type BasicAuth struct {
	Username string
	Password string
}

// NewServer creates a new Server with default mux
func NewServer(controller Controller, browser LedgerBrowser, basicAuth BasicAuth, maxUpload int64) *Server {
	return NewServerWithMux(controller, browser, basicAuth, maxUpload, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(controller Controller, browser LedgerBrowser, basicAuth BasicAuth, maxUpload int64, mux *http.ServeMux) *Server {
	if maxUpload <= 0 {
		maxUpload = 10 << 20
	}
	s := &Server{
		controller: controller,
		ledger:     browser,
		basicAuth:  basicAuth,
		maxUpload:  maxUpload,
		mux:        mux,
	}
	s.registerRoutes()
	return s
}

// authenticate checks basic auth credentials
func (s *Server) authenticate(r *http.Request) bool {
	if s.basicAuth.Username == "" && s.basicAuth.Password == "" {
		return true // No auth required if not configured
	}

	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Basic ") {
		return false
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(auth, "Basic "))
	if err != nil {
		return false
	}

	credentials := strings.SplitN(string(decoded), ":", 2)
	if len(credentials) != 2 {
		return false
	}

	return credentials[0] == s.basicAuth.Username && credentials[1] == s.basicAuth.Password
}

// corsMiddleware adds CORS headers to responses
func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next(w, r)
	}
}

// requireAuth middleware
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticate(r) {
			setCORSHeaders(w)
			w.Header().Set("WWW-Authenticate", `Basic realm="Stock Intake"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// registerRoutes registers all API routes on the server's mux.
// Routes must be registered from most specific to least specific.
func (s *Server) registerRoutes() {
	// Intake session
	s.mux.HandleFunc("POST /api/intake/image", s.requireAuth(s.handleSubmitImage))
	s.mux.HandleFunc("POST /api/intake/text", s.requireAuth(s.handleSubmitText))
	s.mux.HandleFunc("POST /api/intake/items", s.requireAuth(s.handleAddItem))
	s.mux.HandleFunc("PATCH /api/intake/items/{id}", s.requireAuth(s.handleEditItem))
	s.mux.HandleFunc("DELETE /api/intake/items/{id}", s.requireAuth(s.handleRemoveItem))
	s.mux.HandleFunc("POST /api/intake/commit", s.requireAuth(s.handleCommit))
	s.mux.HandleFunc("DELETE /api/intake", s.requireAuth(s.handleCancel))
	s.mux.HandleFunc("GET /api/intake", s.requireAuth(s.handleSnapshot))

	// Ledger browsing and catalog seeding
	s.mux.HandleFunc("GET /api/ledger/entries", s.requireAuth(s.handleListEntries))
	s.mux.HandleFunc("GET /api/ledger/products", s.requireAuth(s.handleListProducts))
	s.mux.HandleFunc("POST /api/ledger/products", s.requireAuth(s.handlePutProduct))
}

// Start starts the HTTP server
func (s *Server) Start(addr string) error {
	slog.Info("Starting server", "address", addr)
	return http.ListenAndServe(addr, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.corsMiddleware(func(w http.ResponseWriter, r *http.Request) {
			s.mux.ServeHTTP(w, r)
		})(w, r)
	}))
}

// ServeHTTP implements http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
