//go:generate mockgen -source ./server.go -destination=./mocks/server.go -package=mock_server
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/mealbridge/mealbridge/internal/discovery"
	"github.com/mealbridge/mealbridge/internal/storage"
)

type Store interface {
	AddListing(ctx context.Context, draft storage.Listing) (*storage.Listing, error)
	GetListing(ctx context.Context, id string) (*storage.Listing, error)
	DonorListings(ctx context.Context, donorID string) ([]storage.Listing, error)
	WithdrawListing(ctx context.Context, id string, actor storage.Actor) (*storage.Listing, error)
	ListingHistory(ctx context.Context, id string) ([]storage.HistoryEntry, error)
}

type Discoverer interface {
	Discover(ctx context.Context, query storage.ViewerQuery) ([]discovery.Result, error)
}

type Claimer interface {
	Claim(ctx context.Context, listingID string, claimant storage.Actor) (*storage.Listing, error)
}

type IdentityProvider interface {
	Authenticate(ctx context.Context, username, password string) (*storage.Actor, error)
}

type Server struct {
	store        Store
	discoverer   Discoverer
	claimer      Claimer
	identity     IdentityProvider
	logger       *zap.Logger
	server       *http.Server
	AuditManager *AuditManager
}

func New(store Store, discoverer Discoverer, claimer Claimer, identity IdentityProvider, auditManager *AuditManager, logger *zap.Logger) *Server {
	return &Server{
		store:        store,
		discoverer:   discoverer,
		claimer:      claimer,
		identity:     identity,
		logger:       logger,
		AuditManager: auditManager,
	}
}

func (s *Server) Run(ctx context.Context, port string) error {
	router := s.setupRoutes()

	s.server = &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.AuditManager.Start(ctx)

	s.logger.Info("http server starting", zap.String("port", port))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")

	if err := s.server.Shutdown(ctx); err != nil {
		return err
	}

	s.AuditManager.Shutdown(ctx)
	return nil
}

func (s *Server) setupRoutes() http.Handler {
	router := mux.NewRouter()

	router.HandleFunc("/listings/expiry/suggestion", s.handleExpirySuggestion).Methods(http.MethodGet)
	router.HandleFunc("/listings", s.handleCreateListing).Methods(http.MethodPost)
	router.HandleFunc("/listings", s.handleDiscover).Methods(http.MethodGet)
	router.HandleFunc("/listings/{id}", s.handleGetListing).Methods(http.MethodGet)
	router.HandleFunc("/listings/{id}/claim", s.handleClaimListing).Methods(http.MethodPost)
	router.HandleFunc("/listings/{id}/withdraw", s.handleWithdrawListing).Methods(http.MethodPost)
	router.HandleFunc("/listings/{id}/history", s.handleListingHistory).Methods(http.MethodGet)
	router.HandleFunc("/users/{userID}/listings", s.handleDonorListings).Methods(http.MethodGet)

	return s.auditLogMiddleware(s.basicAuthMiddleware(router))
}

type contextKey string

const actorContextKey contextKey = "actor"

func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok {
			w.Header().Set("WWW-Authenticate", `Basic realm="Restricted"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		actor, err := s.identity.Authenticate(r.Context(), username, password)
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Basic realm="Restricted"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorContextKey, *actor)))
	})
}

func actorFromContext(ctx context.Context) (storage.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey).(storage.Actor)
	return actor, ok
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
