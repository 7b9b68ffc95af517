package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/cardvault/apiserver/internal/services"
	"github.com/cardvault/apiserver/types"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// AdminCardHandler provides the admin card endpoints.
type AdminCardHandler struct {
	cards *services.CardService
}

func NewAdminCardHandler(cards *services.CardService) *AdminCardHandler {
	return &AdminCardHandler{cards: cards}
}

// AdminCardRouter registers admin card routes on the given router.
func AdminCardRouter(r chi.Router, cards *services.CardService) {
	handler := NewAdminCardHandler(cards)

	r.Use(RequireRole(types.RoleAdmin))
	r.Get("/list", handler.List)
	r.Put("/status/{cardID}", handler.ChangeStatus)
	r.Get("/{cardID}", handler.Get)
	r.Put("/{cardID}", handler.Update)
}

type CardAdminUpdateRequest struct {
	Status    *string          `json:"status"`
	Balance   *decimal.Decimal `json:"balance"`
	ExpiresAt *time.Time       `json:"expires_at"`
}

type CardStatusRequest struct {
	Status string `json:"status"`
}

// List returns one page over every card with full numbers.
func (h *AdminCardHandler) List(w http.ResponseWriter, r *http.Request) {
	page, size, offset, err := parsePagination(r, defaultCardPageSize)
	if err != nil {
		writeError(w, services.Validation(err.Error()))
		return
	}

	views, total, err := h.cards.ListAll(r.Context(), PrincipalFromContext(r.Context()), offset, size)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCardListResponse(views, page, size, total))
}

// Get returns any card by id.
func (h *AdminCardHandler) Get(w http.ResponseWriter, r *http.Request) {
	cardID, err := parseUUIDParam(r, "cardID")
	if err != nil {
		writeError(w, services.Validation(err.Error()))
		return
	}

	view, err := h.cards.GetByAdmin(r.Context(), PrincipalFromContext(r.Context()), cardID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCardResponse(view))
}

// Update applies a partial update of status, balance and expiry date.
func (h *AdminCardHandler) Update(w http.ResponseWriter, r *http.Request) {
	cardID, err := parseUUIDParam(r, "cardID")
	if err != nil {
		writeError(w, services.Validation(err.Error()))
		return
	}

	var req CardAdminUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, services.Validation("invalid request body"))
		return
	}

	var update services.CardUpdate
	if req.Status != nil {
		status, err := types.ParseCardStatus(*req.Status)
		if err != nil {
			writeError(w, services.Validation(err.Error()))
			return
		}
		update.Status = &status
	}
	if req.Balance != nil {
		if req.Balance.IsNegative() {
			writeError(w, services.Validation("Balance must not be negative"))
			return
		}
		update.Balance = req.Balance
	}
	update.ExpiresAt = req.ExpiresAt

	view, err := h.cards.UpdateByAdmin(r.Context(), PrincipalFromContext(r.Context()), cardID, update)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCardResponse(view))
}

// ChangeStatus writes the card status unconditionally.
func (h *AdminCardHandler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	cardID, err := parseUUIDParam(r, "cardID")
	if err != nil {
		writeError(w, services.Validation(err.Error()))
		return
	}

	var req CardStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, services.Validation("invalid request body"))
		return
	}

	status, err := types.ParseCardStatus(req.Status)
	if err != nil {
		writeError(w, services.Validation(err.Error()))
		return
	}

	if err := h.cards.ChangeStatus(r.Context(), PrincipalFromContext(r.Context()), cardID, status); err != nil {
		writeError(w, err)
		return
	}
	writeMessage(w, "Status successfully changed")
}
