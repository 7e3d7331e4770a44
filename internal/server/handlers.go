package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/mealbridge/mealbridge/internal/storage"
)

// writeDomainError maps the core error taxonomy onto HTTP statuses. The 409
// responses carry the observed state so the UI can say "already claimed"
// rather than a generic failure.
func writeDomainError(w http.ResponseWriter, err error) {
	var verr *storage.ValidationError
	if errors.As(err, &verr) {
		respondJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":  "validation failed",
			"fields": verr.Fields,
		})
		return
	}

	var coordErr *storage.InvalidCoordinateError
	if errors.As(err, &coordErr) {
		respondError(w, http.StatusBadRequest, coordErr.Error())
		return
	}

	if errors.Is(err, storage.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Listing not found")
		return
	}

	var unavailable *storage.AlreadyUnavailableError
	if errors.As(err, &unavailable) {
		respondJSON(w, http.StatusConflict, map[string]string{
			"error": unavailable.Error(),
			"state": string(unavailable.State),
		})
		return
	}

	var transition *storage.InvalidTransitionError
	if errors.As(err, &transition) {
		respondJSON(w, http.StatusConflict, map[string]string{
			"error": transition.Error(),
			"state": string(transition.From),
		})
		return
	}

	respondError(w, http.StatusInternalServerError, "Error: "+err.Error())
}

func (s *Server) handleCreateListing(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	if actor.Role != storage.RoleDonor && actor.Role != storage.RoleAdmin {
		respondError(w, http.StatusForbidden, "Only donors can create listings")
		return
	}

	var listingRequest struct {
		DishDescription string     `json:"dish_description"`
		FoodCategory    string     `json:"food_category"`
		Servings        int        `json:"servings"`
		PreparedAt      *time.Time `json:"prepared_at"`
		ReadyAt         time.Time  `json:"ready_at"`
		ExpiresAt       time.Time  `json:"expires_at"`
		Address         string     `json:"address"`
		Lat             float64    `json:"lat"`
		Lon             float64    `json:"lon"`
	}

	if err := json.NewDecoder(r.Body).Decode(&listingRequest); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	listing, err := s.store.AddListing(r.Context(), storage.Listing{
		DonorID:         actor.ID,
		DishDescription: listingRequest.DishDescription,
		FoodCategory:    storage.FoodCategory(listingRequest.FoodCategory),
		Servings:        listingRequest.Servings,
		PreparedAt:      listingRequest.PreparedAt,
		ReadyAt:         listingRequest.ReadyAt,
		ExpiresAt:       listingRequest.ExpiresAt,
		Address:         listingRequest.Address,
		Location:        storage.Coordinate{Lat: listingRequest.Lat, Lon: listingRequest.Lon},
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, listing)
}

func (s *Server) handleGetListing(w http.ResponseWriter, r *http.Request) {
	listingID := mux.Vars(r)["id"]
	if listingID == "" {
		respondError(w, http.StatusBadRequest, "Missing listing ID")
		return
	}

	listing, err := s.store.GetListing(r.Context(), listingID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, listing)
}

func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	latStr := r.URL.Query().Get("lat")
	lonStr := r.URL.Query().Get("lon")
	if latStr == "" || lonStr == "" {
		respondError(w, http.StatusBadRequest, "Missing lat or lon parameter")
		return
	}
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid value for 'lat' parameter")
		return
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid value for 'lon' parameter")
		return
	}

	query := storage.ViewerQuery{
		Viewer:     actor,
		Location:   storage.Coordinate{Lat: lat, Lon: lon},
		UrgentOnly: r.URL.Query().Get("urgent") == "true",
	}

	if categoryStr := r.URL.Query().Get("category"); categoryStr != "" {
		category := storage.FoodCategory(categoryStr)
		if !category.Valid() {
			respondError(w, http.StatusBadRequest, "Unknown food category: "+categoryStr)
			return
		}
		query.Category = category
	}

	results, err := s.discoverer.Discover(r.Context(), query)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":    len(results),
		"listings": results,
	})
}

func (s *Server) handleClaimListing(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	listingID := mux.Vars(r)["id"]
	if listingID == "" {
		respondError(w, http.StatusBadRequest, "Missing listing ID")
		return
	}

	listing, err := s.claimer.Claim(r.Context(), listingID, actor)
	if err != nil {
		var unavailable *storage.AlreadyUnavailableError
		if !errors.As(err, &unavailable) && !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("claim rejected",
				zap.String("listing_id", listingID),
				zap.String("claimant_id", actor.ID),
				zap.Error(err))
			respondError(w, http.StatusForbidden, err.Error())
			return
		}
		writeDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, listing)
}

func (s *Server) handleWithdrawListing(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	listingID := mux.Vars(r)["id"]
	if listingID == "" {
		respondError(w, http.StatusBadRequest, "Missing listing ID")
		return
	}
	if actor.Role != storage.RoleDonor && actor.Role != storage.RoleAdmin {
		respondError(w, http.StatusForbidden, "Only donors or admins can withdraw listings")
		return
	}

	listing, err := s.store.WithdrawListing(r.Context(), listingID, actor)
	if err != nil {
		var transition *storage.InvalidTransitionError
		if !errors.As(err, &transition) && !errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusForbidden, err.Error())
			return
		}
		writeDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, listing)
}

func (s *Server) handleListingHistory(w http.ResponseWriter, r *http.Request) {
	listingID := mux.Vars(r)["id"]
	if listingID == "" {
		respondError(w, http.StatusBadRequest, "Missing listing ID")
		return
	}

	history, err := s.store.ListingHistory(r.Context(), listingID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, history)
}

func (s *Server) handleDonorListings(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	userID := mux.Vars(r)["userID"]
	if userID == "" {
		respondError(w, http.StatusBadRequest, "Missing user ID")
		return
	}
	if actor.Role != storage.RoleAdmin && actor.ID != userID {
		respondError(w, http.StatusForbidden, "Cannot view listings of another user")
		return
	}

	listings, err := s.store.DonorListings(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, listings)
}

func (s *Server) handleExpirySuggestion(w http.ResponseWriter, r *http.Request) {
	categoryStr := r.URL.Query().Get("category")
	category := storage.FoodCategory(categoryStr)
	if !category.Valid() {
		respondError(w, http.StatusBadRequest, "Unknown food category: "+categoryStr)
		return
	}

	suggested := storage.PredictExpiry(category, time.Now().UTC())
	respondJSON(w, http.StatusOK, map[string]string{
		"expires_at": suggested.Format(time.RFC3339),
	})
}
