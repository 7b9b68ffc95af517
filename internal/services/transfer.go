package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cardvault/apiserver/internal/store"
	"github.com/cardvault/apiserver/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// TransferChannel is the broker channel transfer events are published to.
const TransferChannel = "card.transfers"

// TransferRepository defines the ledger operations the engine needs.
type TransferRepository interface {
	// ExecuteTransfer atomically debits, credits and records the SUCCESS
	// row; it returns store.ErrInsufficientFunds without moving funds.
	ExecuteTransfer(ctx context.Context, fromID, toID uuid.UUID, amount decimal.Decimal, sentAt time.Time) (types.Transaction, error)
	// RecordFailure appends a FAILED row in an independent transactional
	// scope that commits even though the transfer itself aborted.
	RecordFailure(ctx context.Context, fromID, toID uuid.UUID, amount decimal.Decimal, sentAt time.Time) (types.Transaction, error)
	ListByProfile(ctx context.Context, profileID uuid.UUID, offset, limit int) ([]types.TransferView, int, error)
	ListAll(ctx context.Context, offset, limit int) ([]types.TransferView, int, error)
}

// EventPublisher publishes domain events to the configured broker.
type EventPublisher interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
}

// HistoryCache caches per-profile history pages.
type HistoryCache interface {
	Get(ctx context.Context, profileID uuid.UUID, page, size int) ([]types.TransferView, int, bool)
	Set(ctx context.Context, profileID uuid.UUID, page, size int, items []types.TransferView, total int)
	Invalidate(ctx context.Context, profileIDs ...uuid.UUID)
}

// TransferEvent is the payload published after a ledger row is durable.
type TransferEvent struct {
	TransactionID int64                   `json:"transaction_id"`
	FromCardID    uuid.UUID               `json:"from_card_id"`
	ToCardID      uuid.UUID               `json:"to_card_id"`
	Amount        decimal.Decimal         `json:"amount"`
	Status        types.TransactionStatus `json:"status"`
	SentAt        time.Time               `json:"sent_at"`
}

// TransferService moves funds between cards and records every attempt in
// the ledger. Publisher and cache are optional; a nil publisher disables
// events and a nil cache disables the history read model.
type TransferService struct {
	cards     CardRepository
	transfers TransferRepository
	publisher EventPublisher
	cache     HistoryCache
	log       *logrus.Logger
}

func NewTransferService(cards CardRepository, transfers TransferRepository, publisher EventPublisher, cache HistoryCache, log *logrus.Logger) *TransferService {
	return &TransferService{
		cards:     cards,
		transfers: transfers,
		publisher: publisher,
		cache:     cache,
		log:       log,
	}
}

// Transfer moves amount from the principal's card to another card. Both
// cards must be visible and ACTIVE; only admins may send from cards they
// do not own.
func (s *TransferService) Transfer(ctx context.Context, principal types.Principal, fromID, toID uuid.UUID, amount decimal.Decimal) (types.TransferView, error) {
	if principal.Anonymous() {
		return types.TransferView{}, Unauthenticated("authentication required")
	}

	from, to, err := s.loadPair(ctx, fromID, toID)
	if err != nil {
		return types.TransferView{}, err
	}

	if !principal.IsAdmin() && from.ProfileID != principal.ProfileID {
		return types.TransferView{}, Forbidden("You can only transfer from your own card")
	}
	if from.Status != types.CardActive {
		return types.TransferView{}, BadRequest("Sender Card is not active")
	}
	if to.Status != types.CardActive {
		return types.TransferView{}, BadRequest("Recipient Card is not active")
	}

	return s.execute(ctx, from, to, amount)
}

// TransferByAdmin moves amount between any two visible cards. The ACTIVE
// status checks of the user path are deliberately skipped: this is the
// administrative override.
func (s *TransferService) TransferByAdmin(ctx context.Context, principal types.Principal, fromID, toID uuid.UUID, amount decimal.Decimal) (types.TransferView, error) {
	from, to, err := s.loadPair(ctx, fromID, toID)
	if err != nil {
		return types.TransferView{}, err
	}

	if !principal.IsAdmin() {
		return types.TransferView{}, Forbidden("Only admins can transfer")
	}

	return s.execute(ctx, from, to, amount)
}

func (s *TransferService) loadPair(ctx context.Context, fromID, toID uuid.UUID) (types.Card, types.Card, error) {
	from, err := s.cards.GetVisibleByID(ctx, fromID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Card{}, types.Card{}, NotFound("Sender card not found")
		}
		return types.Card{}, types.Card{}, fmt.Errorf("load sender card: %w", err)
	}

	to, err := s.cards.GetVisibleByID(ctx, toID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Card{}, types.Card{}, NotFound("Recipient card not found")
		}
		return types.Card{}, types.Card{}, fmt.Errorf("load recipient card: %w", err)
	}

	return from, to, nil
}

// execute runs the validated transfer. The debit, credit and SUCCESS row
// commit as one unit inside the repository; an insufficient balance aborts
// that unit and the FAILED row is recorded in a fresh scope that survives
// the abort.
func (s *TransferService) execute(ctx context.Context, from, to types.Card, amount decimal.Decimal) (types.TransferView, error) {
	entry, err := s.transfers.ExecuteTransfer(ctx, from.ID, to.ID, amount, time.Now())
	if err != nil {
		if errors.Is(err, store.ErrInsufficientFunds) {
			failed, recErr := s.transfers.RecordFailure(ctx, from.ID, to.ID, amount, time.Now())
			if recErr != nil {
				s.log.Errorf("record failed transfer %s -> %s: %v", from.ID, to.ID, recErr)
			} else {
				s.afterWrite(ctx, failed, from, to)
			}
			return types.TransferView{}, BadRequest("Insufficient balance")
		}
		return types.TransferView{}, fmt.Errorf("execute transfer: %w", err)
	}

	s.log.Infof("transfer %d completed: %s -> %s amount %s", entry.ID, from.ID, to.ID, amount)
	s.afterWrite(ctx, entry, from, to)

	return types.TransferView{
		ID:             entry.ID,
		FromCardNumber: from.CardNumber,
		ToCardNumber:   to.CardNumber,
		Amount:         entry.Amount,
		Status:         entry.Status,
		SentAt:         entry.SentAt,
	}, nil
}

// afterWrite runs the post-commit side effects: the broker event and the
// history cache invalidation for both counterpart profiles. Neither may
// fail the request; the ledger row is already durable.
func (s *TransferService) afterWrite(ctx context.Context, entry types.Transaction, from, to types.Card) {
	if s.publisher != nil {
		event := TransferEvent{
			TransactionID: entry.ID,
			FromCardID:    entry.FromCardID,
			ToCardID:      entry.ToCardID,
			Amount:        entry.Amount,
			Status:        entry.Status,
			SentAt:        entry.SentAt,
		}
		data, err := json.Marshal(event)
		if err == nil {
			_, err = s.publisher.Publish(ctx, TransferChannel, data, map[string]string{
				"status": string(entry.Status),
			})
		}
		if err != nil {
			s.log.Warnf("publish transfer event %d: %v", entry.ID, err)
		}
	}

	if s.cache != nil {
		s.cache.Invalidate(ctx, from.ProfileID, to.ProfileID)
	}
}

// History returns one page of ledger rows touching any of the principal's
// cards, newest first. Pages are served from the cache when present; the
// cache is invalidated whenever a new row involving the profile is
// written, and rows themselves are immutable.
func (s *TransferService) History(ctx context.Context, principal types.Principal, page, size int) ([]types.TransferView, int, error) {
	if principal.Anonymous() {
		return nil, 0, Unauthenticated("authentication required")
	}

	if s.cache != nil {
		if items, total, ok := s.cache.Get(ctx, principal.ProfileID, page, size); ok {
			return items, total, nil
		}
	}

	items, total, err := s.transfers.ListByProfile(ctx, principal.ProfileID, page*size, size)
	if err != nil {
		return nil, 0, fmt.Errorf("list history: %w", err)
	}

	if s.cache != nil {
		s.cache.Set(ctx, principal.ProfileID, page, size, items, total)
	}
	return items, total, nil
}

// AllTransactions returns one page over the whole ledger. Admin only.
func (s *TransferService) AllTransactions(ctx context.Context, principal types.Principal, page, size int) ([]types.TransferView, int, error) {
	if !principal.IsAdmin() {
		return nil, 0, Forbidden("Only admins can view all transactions")
	}

	items, total, err := s.transfers.ListAll(ctx, page*size, size)
	if err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}
	return items, total, nil
}
