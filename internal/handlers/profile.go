package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/cardvault/apiserver/internal/services"
	"github.com/cardvault/apiserver/types"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// ProfileHandler provides the admin profile endpoints.
type ProfileHandler struct {
	profiles *services.ProfileService
}

func NewProfileHandler(profiles *services.ProfileService) *ProfileHandler {
	return &ProfileHandler{profiles: profiles}
}

// ProfileRouter registers admin profile routes on the given router.
func ProfileRouter(r chi.Router, profiles *services.ProfileService) {
	handler := NewProfileHandler(profiles)

	r.Use(RequireRole(types.RoleAdmin))
	r.Get("/", handler.List)
	r.Put("/status/{profileID}", handler.ChangeStatus)
	r.Delete("/delete/{profileID}", handler.Delete)
	r.Get("/{profileID}", handler.Get)
}

type ProfileStatusRequest struct {
	Status string `json:"status"`
}

type ProfileResponse struct {
	ID       uuid.UUID           `json:"id"`
	Name     string              `json:"name"`
	Username string              `json:"username"`
	Status   types.ProfileStatus `json:"status"`
	Roles    []types.Role        `json:"roles"`
}

func toProfileResponse(view services.ProfileView) ProfileResponse {
	return ProfileResponse{
		ID:       view.ID,
		Name:     view.Name,
		Username: view.Username,
		Status:   view.Status,
		Roles:    view.Roles,
	}
}

// List returns every profile with its roles.
func (h *ProfileHandler) List(w http.ResponseWriter, r *http.Request) {
	views, err := h.profiles.List(r.Context(), PrincipalFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}

	items := make([]ProfileResponse, 0, len(views))
	for _, v := range views {
		items = append(items, toProfileResponse(v))
	}
	writeJSON(w, http.StatusOK, items)
}

// Get returns one profile by id.
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	profileID, err := parseUUIDParam(r, "profileID")
	if err != nil {
		writeError(w, services.Validation(err.Error()))
		return
	}

	view, err := h.profiles.GetByID(r.Context(), PrincipalFromContext(r.Context()), profileID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfileResponse(view))
}

// ChangeStatus blocks or unblocks a profile.
func (h *ProfileHandler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	profileID, err := parseUUIDParam(r, "profileID")
	if err != nil {
		writeError(w, services.Validation(err.Error()))
		return
	}

	var req ProfileStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, services.Validation("invalid request body"))
		return
	}

	status, err := types.ParseProfileStatus(req.Status)
	if err != nil {
		writeError(w, services.Validation(err.Error()))
		return
	}

	if err := h.profiles.ChangeStatus(r.Context(), PrincipalFromContext(r.Context()), profileID, status); err != nil {
		writeError(w, err)
		return
	}
	writeMessage(w, "Status changed")
}

// Delete logically deletes a profile.
func (h *ProfileHandler) Delete(w http.ResponseWriter, r *http.Request) {
	profileID, err := parseUUIDParam(r, "profileID")
	if err != nil {
		writeError(w, services.Validation(err.Error()))
		return
	}

	if err := h.profiles.Delete(r.Context(), PrincipalFromContext(r.Context()), profileID); err != nil {
		writeError(w, err)
		return
	}
	writeMessage(w, "Profile deleted")
}
