package api

import (
	"log/slog"
	"net/http"

	"github.com/BTreeMap/HealthMate/internal/models"
	"github.com/go-chi/chi/v5"
)

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("healthy", nil))
}

// recordsHandler lists a user's finalized records, oldest first.
// With ?format=rows each record is flattened to ordered key/value columns, one per disease.
func (s *Server) recordsHandler(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("user ID is required"))
		return
	}
	records, err := s.records.ListRecords(r.Context(), userID)
	if err != nil {
		slog.Error("Server.recordsHandler: failed to list records", "userID", userID, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list records"))
		return
	}
	if records == nil {
		records = []models.Record{}
	}
	slog.Debug("Server.recordsHandler: records listed", "userID", userID, "count", len(records))

	switch r.URL.Query().Get("format") {
	case "", "records":
		writeJSONResponse(w, http.StatusOK, models.Success(records))
	case "rows":
		rows := make([][]models.Column, 0, len(records))
		for _, rec := range records {
			rows = append(rows, rec.Row())
		}
		writeJSONResponse(w, http.StatusOK, models.Success(rows))
	default:
		writeJSONResponse(w, http.StatusBadRequest, models.Error("format must be records or rows"))
	}
}

// verifyTwilioSignature rejects webhook calls that were not signed with the account's auth token.
func (s *Server) verifyTwilioSignature(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Validator == nil {
			next.ServeHTTP(w, r)
			return
		}
		if err := r.ParseForm(); err != nil {
			slog.Warn("Server.verifyTwilioSignature: failed to parse form", "error", err)
			http.Error(w, "Bad request", http.StatusBadRequest)
			return
		}
		params := make(map[string]string, len(r.PostForm))
		for k, v := range r.PostForm {
			if len(v) > 0 {
				params[k] = v[0]
			}
		}
		if !s.cfg.Validator.Validate(s.webhookURL(r), params, r.Header.Get(TwilioSignatureHeader)) {
			slog.Warn("Server.verifyTwilioSignature: invalid signature", "remote", r.RemoteAddr)
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) webhookURL(r *http.Request) string {
	if s.cfg.PublicWebhookURL != "" {
		return s.cfg.PublicWebhookURL
	}
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}
