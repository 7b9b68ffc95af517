package handlers

import (
	"encoding/json"
	"net/http"
	"regexp"
	"time"

	"github.com/cardvault/apiserver/internal/services"
	"github.com/cardvault/apiserver/types"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	defaultCardPageSize   = 3
	defaultFilterPageSize = 5
)

var cardNumberPattern = regexp.MustCompile(`^\d{16}$`)

// CardHandler provides the user-facing card endpoints.
type CardHandler struct {
	cards *services.CardService
}

func NewCardHandler(cards *services.CardService) *CardHandler {
	return &CardHandler{cards: cards}
}

// CardRouter registers user card routes on the given router.
func CardRouter(r chi.Router, cards *services.CardService) {
	handler := NewCardHandler(cards)

	r.With(RequireRole(types.RoleUser)).Post("/create", handler.Create)
	r.With(RequireRole(types.RoleUser)).Get("/list", handler.List)
	r.With(RequireRole(types.RoleUser)).Post("/filter", handler.Filter)
	r.With(RequireRole(types.RoleUser)).Get("/balance/{cardID}", handler.Balance)
	r.With(RequireRole(types.RoleUser)).Put("/block-request/{cardID}", handler.RequestBlock)
	r.With(RequireRole(types.RoleUser)).Get("/{cardID}", handler.Get)
	r.With(RequireRole(types.RoleUser, types.RoleAdmin)).Delete("/{cardID}", handler.Delete)
}

type CardCreateRequest struct {
	ProfileID      uuid.UUID        `json:"profile_id"`
	CardNumber     string           `json:"card_number"`
	InitialBalance *decimal.Decimal `json:"initial_balance"`
}

type CardFilterRequest struct {
	CardNumber string `json:"card_number"`
}

type CardResponse struct {
	ID        uuid.UUID        `json:"id"`
	OwnerName string           `json:"owner_name"`
	Number    string           `json:"number"`
	Balance   decimal.Decimal  `json:"balance"`
	Status    types.CardStatus `json:"status"`
	ExpiresAt time.Time        `json:"expires_at"`
	Note      string           `json:"note,omitempty"`
}

type CardListResponse struct {
	Items []CardResponse `json:"items"`
	Page  int            `json:"page"`
	Size  int            `json:"size"`
	Total int            `json:"total"`
}

func toCardResponse(view services.CardView) CardResponse {
	return CardResponse{
		ID:        view.ID,
		OwnerName: view.OwnerName,
		Number:    view.Number,
		Balance:   view.Balance,
		Status:    view.Status,
		ExpiresAt: view.ExpiresAt,
		Note:      view.Note,
	}
}

func toCardListResponse(views []services.CardView, page, size, total int) CardListResponse {
	items := make([]CardResponse, 0, len(views))
	for _, v := range views {
		items = append(items, toCardResponse(v))
	}
	return CardListResponse{Items: items, Page: page, Size: size, Total: total}
}

// Create issues a new card for the given profile.
func (h *CardHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CardCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, services.Validation("invalid request body"))
		return
	}

	if req.ProfileID == uuid.Nil {
		writeError(w, services.Validation("Profile ID required"))
		return
	}
	if !cardNumberPattern.MatchString(req.CardNumber) {
		writeError(w, services.Validation("Card number must be exactly 16 digits"))
		return
	}
	if req.InitialBalance == nil {
		writeError(w, services.Validation("InitialBalance required"))
		return
	}
	if req.InitialBalance.IsNegative() {
		writeError(w, services.Validation("InitialBalance must not be negative"))
		return
	}

	view, err := h.cards.Create(r.Context(), PrincipalFromContext(r.Context()), req.ProfileID, req.CardNumber, *req.InitialBalance)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCardResponse(view))
}

// List returns one page of the caller's cards with masked numbers.
func (h *CardHandler) List(w http.ResponseWriter, r *http.Request) {
	page, size, offset, err := parsePagination(r, defaultCardPageSize)
	if err != nil {
		writeError(w, services.Validation(err.Error()))
		return
	}

	views, total, err := h.cards.ListOwn(r.Context(), PrincipalFromContext(r.Context()), offset, size)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCardListResponse(views, page, size, total))
}

// Get returns the caller's card with its full number, status-checked.
func (h *CardHandler) Get(w http.ResponseWriter, r *http.Request) {
	cardID, err := parseUUIDParam(r, "cardID")
	if err != nil {
		writeError(w, services.Validation(err.Error()))
		return
	}

	view, err := h.cards.GetByID(r.Context(), PrincipalFromContext(r.Context()), cardID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCardResponse(view))
}

// Delete logically deletes a card.
func (h *CardHandler) Delete(w http.ResponseWriter, r *http.Request) {
	cardID, err := parseUUIDParam(r, "cardID")
	if err != nil {
		writeError(w, services.Validation(err.Error()))
		return
	}

	if err := h.cards.Delete(r.Context(), PrincipalFromContext(r.Context()), cardID); err != nil {
		writeError(w, err)
		return
	}
	writeMessage(w, "Successfully deleted")
}

// Filter returns one page of cards matching a card-number substring.
func (h *CardHandler) Filter(w http.ResponseWriter, r *http.Request) {
	var req CardFilterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, services.Validation("invalid request body"))
		return
	}

	page, size, offset, err := parsePagination(r, defaultFilterPageSize)
	if err != nil {
		writeError(w, services.Validation(err.Error()))
		return
	}

	views, total, err := h.cards.Filter(r.Context(), PrincipalFromContext(r.Context()), req.CardNumber, offset, size)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCardListResponse(views, page, size, total))
}

// Balance returns the caller's card balance with a masked number.
func (h *CardHandler) Balance(w http.ResponseWriter, r *http.Request) {
	cardID, err := parseUUIDParam(r, "cardID")
	if err != nil {
		writeError(w, services.Validation(err.Error()))
		return
	}

	view, err := h.cards.GetBalance(r.Context(), PrincipalFromContext(r.Context()), cardID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCardResponse(view))
}

// RequestBlock asks an administrator to block the caller's card.
func (h *CardHandler) RequestBlock(w http.ResponseWriter, r *http.Request) {
	cardID, err := parseUUIDParam(r, "cardID")
	if err != nil {
		writeError(w, services.Validation(err.Error()))
		return
	}

	if err := h.cards.RequestBlock(r.Context(), PrincipalFromContext(r.Context()), cardID); err != nil {
		writeError(w, err)
		return
	}
	writeMessage(w, "Request sent!")
}
