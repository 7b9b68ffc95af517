package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/cardvault/apiserver/internal/services"
	"github.com/cardvault/apiserver/types"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const defaultHistoryPageSize = 10

// minTransferAmount is the smallest amount accepted at the boundary.
var minTransferAmount = decimal.RequireFromString("0.1")

// TransactionHandler provides the transfer and history endpoints.
type TransactionHandler struct {
	transfers *services.TransferService
}

func NewTransactionHandler(transfers *services.TransferService) *TransactionHandler {
	return &TransactionHandler{transfers: transfers}
}

// TransactionRouter registers transaction routes on the given router.
func TransactionRouter(r chi.Router, transfers *services.TransferService) {
	handler := NewTransactionHandler(transfers)

	r.With(RequireRole(types.RoleUser)).Post("/send", handler.Send)
	r.With(RequireRole(types.RoleUser)).Get("/history", handler.History)
	r.With(RequireRole(types.RoleAdmin)).Post("/admin/send", handler.SendByAdmin)
	r.With(RequireRole(types.RoleAdmin)).Get("/admin/transactions", handler.AllTransactions)
}

type TransferRequest struct {
	FromCardID uuid.UUID        `json:"from_card_id"`
	ToCardID   uuid.UUID        `json:"to_card_id"`
	Amount     *decimal.Decimal `json:"amount"`
}

type TransferResponse struct {
	ID             int64                   `json:"id"`
	FromCardNumber string                  `json:"from_card_number"`
	ToCardNumber   string                  `json:"to_card_number"`
	Amount         decimal.Decimal         `json:"amount"`
	Status         types.TransactionStatus `json:"status"`
	SentAt         string                  `json:"sent_at"`
}

type TransferListResponse struct {
	Items []TransferResponse `json:"items"`
	Page  int                `json:"page"`
	Size  int                `json:"size"`
	Total int                `json:"total"`
}

func toTransferResponse(view types.TransferView) TransferResponse {
	return TransferResponse{
		ID:             view.ID,
		FromCardNumber: view.FromCardNumber,
		ToCardNumber:   view.ToCardNumber,
		Amount:         view.Amount,
		Status:         view.Status,
		SentAt:         view.SentAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

func (h *TransactionHandler) parseTransfer(w http.ResponseWriter, r *http.Request) (TransferRequest, bool) {
	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, services.Validation("invalid request body"))
		return TransferRequest{}, false
	}
	if req.FromCardID == uuid.Nil || req.ToCardID == uuid.Nil {
		writeError(w, services.Validation("Card Id required"))
		return TransferRequest{}, false
	}
	if req.Amount == nil {
		writeError(w, services.Validation("Amount required"))
		return TransferRequest{}, false
	}
	if req.Amount.LessThan(minTransferAmount) {
		writeError(w, services.Validation("Amount must be greater than 0"))
		return TransferRequest{}, false
	}
	return req, true
}

// Send transfers money from the caller's card to another card.
func (h *TransactionHandler) Send(w http.ResponseWriter, r *http.Request) {
	req, ok := h.parseTransfer(w, r)
	if !ok {
		return
	}

	view, err := h.transfers.Transfer(r.Context(), PrincipalFromContext(r.Context()), req.FromCardID, req.ToCardID, *req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransferResponse(view))
}

// SendByAdmin transfers money between any two cards.
func (h *TransactionHandler) SendByAdmin(w http.ResponseWriter, r *http.Request) {
	req, ok := h.parseTransfer(w, r)
	if !ok {
		return
	}

	view, err := h.transfers.TransferByAdmin(r.Context(), PrincipalFromContext(r.Context()), req.FromCardID, req.ToCardID, *req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransferResponse(view))
}

// History returns one page of the caller's transfer history.
func (h *TransactionHandler) History(w http.ResponseWriter, r *http.Request) {
	page, size, _, err := parsePagination(r, defaultHistoryPageSize)
	if err != nil {
		writeError(w, services.Validation(err.Error()))
		return
	}

	views, total, err := h.transfers.History(r.Context(), PrincipalFromContext(r.Context()), CurrentPage(page), size)
	if err != nil {
		writeError(w, err)
		return
	}
	writeTransferList(w, views, page, size, total)
}

// AllTransactions returns one page over the whole ledger.
func (h *TransactionHandler) AllTransactions(w http.ResponseWriter, r *http.Request) {
	page, size, _, err := parsePagination(r, defaultHistoryPageSize)
	if err != nil {
		writeError(w, services.Validation(err.Error()))
		return
	}

	views, total, err := h.transfers.AllTransactions(r.Context(), PrincipalFromContext(r.Context()), CurrentPage(page), size)
	if err != nil {
		writeError(w, err)
		return
	}
	writeTransferList(w, views, page, size, total)
}

func writeTransferList(w http.ResponseWriter, views []types.TransferView, page, size, total int) {
	items := make([]TransferResponse, 0, len(views))
	for _, v := range views {
		items = append(items, toTransferResponse(v))
	}
	writeJSON(w, http.StatusOK, TransferListResponse{Items: items, Page: page, Size: size, Total: total})
}
