// Package api exposes the token service and permission engine over HTTP.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/queryforge/trustcore/pkg/httputil"
	"github.com/queryforge/trustcore/pkg/keys"
	"github.com/queryforge/trustcore/pkg/rbac"
	"github.com/queryforge/trustcore/pkg/storage"
	"github.com/queryforge/trustcore/pkg/tokens"
)

// Server represents our API server
type Server struct {
	store        storage.Store
	keys         *keys.Manager
	router       *mux.Router
	tokenHandler *TokenHandlers
	rbacHandler  *RBACHandlers
	log          *logrus.Logger
}

// NewServer creates a new API server
func NewServer(store storage.Store, keyManager *keys.Manager, tokenService *tokens.Service, engine *rbac.Engine, log *logrus.Logger) *Server {
	if log == nil {
		log = logrus.New()
	}
	s := &Server{
		store:        store,
		keys:         keyManager,
		router:       mux.NewRouter(),
		tokenHandler: NewTokenHandlers(tokenService, log),
		rbacHandler:  NewRBACHandlers(engine, log),
		log:          log,
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	s.router.Use(httputil.RecoveryMiddleware(s.log))
	s.router.Use(httputil.LoggingMiddleware(s.log))

	s.router.HandleFunc("/.well-known/jwks.json", s.getJWKS).Methods("GET")
	s.router.HandleFunc("/healthz", s.getHealth).Methods("GET")

	s.tokenHandler.RegisterRoutes(s.router)
	s.rbacHandler.RegisterRoutes(s.router)
}

// Router exposes the underlying router so the binary can mount extra
// endpoints next to the API, such as metrics.
func (s *Server) Router() *mux.Router {
	return s.router
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// getJWKS handles GET /.well-known/jwks.json
func (s *Server) getJWKS(w http.ResponseWriter, r *http.Request) {
	jwks, err := s.keys.JWKS(r.Context())
	if err != nil {
		s.log.WithError(err).Error("Failed to build JWKS")
		httputil.WriteInternalError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=300")
	if err := json.NewEncoder(w).Encode(jwks); err != nil {
		s.log.WithError(err).Error("Failed to write JWKS response")
	}
}

// getHealth handles GET /healthz
func (s *Server) getHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		httputil.WriteErrorMessage(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}
	httputil.WriteSuccess(w, map[string]string{"status": "ok"})
}
