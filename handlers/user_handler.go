package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/jakekinchen/TrailMates-sub002/middleware"
	"github.com/jakekinchen/TrailMates-sub002/models"
	"github.com/jakekinchen/TrailMates-sub002/services"
	"github.com/jakekinchen/TrailMates-sub002/utils/errors"
)

type UserHandler struct {
	graph    *services.SocialGraphService
	identity *services.IdentityService
}

func NewUserHandler(graph *services.SocialGraphService, identity *services.IdentityService) *UserHandler {
	return &UserHandler{graph: graph, identity: identity}
}

// callerID pulls the reconciled profile id the JWT middleware stored in
// the request context.
func callerID(r *http.Request) models.ProfileID {
	id, _ := r.Context().Value(services.ContextUserID).(string)
	return models.ProfileID(id)
}

func isAdmin(r *http.Request) bool {
	admin, _ := r.Context().Value(services.ContextIsAdmin).(bool)
	return admin
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// FindUsersByPhoneNumbers resolves contact-discovery hashes to public
// profiles.
func (h *UserHandler) FindUsersByPhoneNumbers(w http.ResponseWriter, r *http.Request) {
	var input struct {
		HashedPhoneNumbers []string `json:"hashed_phone_numbers"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		middleware.WriteError(w, errors.ErrInvalidArgument)
		return
	}

	users, err := h.graph.FindUsersByHashedPhones(r.Context(), input.HashedPhoneNumbers)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	if users == nil {
		users = []services.DiscoveredUser{}
	}
	writeJSON(w, map[string]any{"users": users})
}

func (h *UserHandler) CheckUsernameTaken(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")
	excluding := models.ProfileID(r.URL.Query().Get("exclude_user_id"))

	taken, err := h.graph.IsUsernameTaken(r.Context(), username, excluding)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, map[string]bool{"username_taken": taken})
}

// CheckUserExists is the unauthenticated pre-signup check.
func (h *UserHandler) CheckUserExists(w http.ResponseWriter, r *http.Request) {
	var input struct {
		HashedPhoneNumber string `json:"hashed_phone_number"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		middleware.WriteError(w, errors.ErrInvalidArgument)
		return
	}
	exists, err := h.graph.UserExistsByHashedPhone(r.Context(), input.HashedPhoneNumber)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, map[string]bool{"user_exists": exists})
}

// EnsureUserDocument reconciles the session identifier with the durable
// profile key, migrating a legacy record if needed. Runs at session
// start before anything else touches profile state.
func (h *UserHandler) EnsureUserDocument(w http.ResponseWriter, r *http.Request) {
	caller := callerID(r)
	if caller == "" {
		middleware.WriteError(w, errors.ErrUnauthenticated)
		return
	}
	result, err := h.identity.EnsureProfile(r.Context(), models.SessionID(caller))
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, result)
}

// MigratePhoneNumbers is the admin-only backfill of missing phone
// hashes.
func (h *UserHandler) MigratePhoneNumbers(w http.ResponseWriter, r *http.Request) {
	if !isAdmin(r) {
		middleware.WriteError(w, errors.ErrPermissionDenied)
		return
	}
	count, err := h.graph.MigratePhoneNumbers(r.Context())
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, map[string]int{"migrated_count": count})
}
