package server

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
)

func (s *Server) auditLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		entry := AuditLogEntry{
			Timestamp: time.Now().UTC(),
			Method:    r.Method,
			Path:      r.URL.Path,
			Handler:   handlerName(r),
		}

		if username, _, ok := r.BasicAuth(); ok {
			entry.ActorID = username
		}

		if strings.HasPrefix(r.URL.Path, "/listings/") {
			parts := strings.Split(r.URL.Path, "/")
			if len(parts) > 2 && parts[2] != "expiry" {
				entry.ListingID = parts[2]
			}
		}

		if r.Body != nil && !strings.Contains(r.Header.Get("Content-Type"), "multipart/form-data") {
			requestBody, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(requestBody))
			entry.Request = string(requestBody)
		}

		wrw := newResponseWriterWrapper(w)

		next.ServeHTTP(wrw, r)

		entry.StatusCode = wrw.GetStatusCode()
		entry.Response = string(wrw.GetBody())

		s.AuditManager.LogEntry(r.Context(), entry)
	})
}

func handlerName(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return r.Method + " " + tmpl
		}
	}

	// The middleware wraps the router, so mux has not matched yet; fall back
	// to a coarse classification.
	path := r.URL.Path
	switch {
	case path == "/listings" && r.Method == http.MethodPost:
		return "handleCreateListing"
	case path == "/listings":
		return "handleDiscover"
	case strings.HasSuffix(path, "/claim"):
		return "handleClaimListing"
	case strings.HasSuffix(path, "/withdraw"):
		return "handleWithdrawListing"
	case strings.HasSuffix(path, "/history"):
		return "handleListingHistory"
	case strings.HasPrefix(path, "/users/"):
		return "handleDonorListings"
	case strings.HasPrefix(path, "/listings/expiry"):
		return "handleExpirySuggestion"
	case strings.HasPrefix(path, "/listings/"):
		return "handleGetListing"
	}
	return "unknown"
}
