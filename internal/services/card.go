package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cardvault/apiserver/internal/store"
	"github.com/cardvault/apiserver/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// CardRepository defines persistence operations for cards.
type CardRepository interface {
	GetVisibleByID(ctx context.Context, id uuid.UUID) (types.Card, error)
	GetVisibleByIDAndOwner(ctx context.Context, id, profileID uuid.UUID) (types.Card, error)
	GetByID(ctx context.Context, id uuid.UUID) (types.Card, error)
	ListVisibleByOwner(ctx context.Context, profileID uuid.UUID, offset, limit int) ([]types.Card, int, error)
	ListAll(ctx context.Context, offset, limit int) ([]types.Card, int, error)
	Filter(ctx context.Context, number string, ownerID uuid.UUID, offset, limit int) ([]types.Card, int, error)
	Create(ctx context.Context, card types.Card) (types.Card, error)
	Update(ctx context.Context, card types.Card) error
	SetStatus(ctx context.Context, id uuid.UUID, status types.CardStatus) error
	SetInvisible(ctx context.Context, id uuid.UUID) error
}

// CardView is the card projection returned to clients. Number carries the
// full card number on owner/admin detail reads and the masked form on list
// and balance reads.
type CardView struct {
	ID        uuid.UUID
	OwnerName string
	Number    string
	Balance   decimal.Decimal
	Status    types.CardStatus
	ExpiresAt time.Time
	Note      string
}

// CardUpdate is the admin partial update. Nil fields are left unchanged.
type CardUpdate struct {
	Status    *types.CardStatus
	Balance   *decimal.Decimal
	ExpiresAt *time.Time
}

// CardService implements the card lifecycle: creation, owner reads with
// status checks, block requests, logical deletion and the admin surface.
type CardService struct {
	cards    CardRepository
	profiles ProfileRepository
	log      *logrus.Logger
}

func NewCardService(cards CardRepository, profiles ProfileRepository, log *logrus.Logger) *CardService {
	return &CardService{cards: cards, profiles: profiles, log: log}
}

// Create issues a new ACTIVE card bound to the given profile. The profile
// must exist and be visible.
func (s *CardService) Create(ctx context.Context, principal types.Principal, profileID uuid.UUID, cardNumber string, initialBalance decimal.Decimal) (CardView, error) {
	if principal.Anonymous() {
		return CardView{}, Unauthenticated("authentication required")
	}

	profile, err := s.profiles.GetVisibleByID(ctx, profileID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return CardView{}, NotFound("Card profile not found")
		}
		return CardView{}, fmt.Errorf("load profile: %w", err)
	}

	card, err := s.cards.Create(ctx, types.Card{
		CardNumber: cardNumber,
		Balance:    initialBalance,
		ProfileID:  profile.ID,
		OwnerName:  profile.Name,
	})
	if err != nil {
		return CardView{}, fmt.Errorf("create card: %w", err)
	}
	card.OwnerName = profile.Name

	s.log.Infof("card created for profile %s", profile.ID)
	return fullView(card), nil
}

// ListOwn returns one page of the principal's visible cards with masked
// numbers, newest first.
func (s *CardService) ListOwn(ctx context.Context, principal types.Principal, offset, limit int) ([]CardView, int, error) {
	if principal.Anonymous() {
		return nil, 0, Unauthenticated("authentication required")
	}

	cards, total, err := s.cards.ListVisibleByOwner(ctx, principal.ProfileID, offset, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("list cards: %w", err)
	}
	return maskedViews(cards), total, nil
}

// GetByID returns the principal's card with its full number. Blocked and
// expired cards are rejected; an expired card is reported as EXPIRED on the
// returned view without persisting the derived status.
func (s *CardService) GetByID(ctx context.Context, principal types.Principal, cardID uuid.UUID) (CardView, error) {
	if principal.Anonymous() {
		return CardView{}, Unauthenticated("authentication required")
	}

	card, err := s.cards.GetVisibleByIDAndOwner(ctx, cardID, principal.ProfileID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return CardView{}, NotFound("Card not found")
		}
		return CardView{}, fmt.Errorf("load card: %w", err)
	}

	if err := checkCardStatus(&card); err != nil {
		return CardView{}, err
	}
	return fullView(card), nil
}

// GetBalance returns a masked view of the principal's card.
func (s *CardService) GetBalance(ctx context.Context, principal types.Principal, cardID uuid.UUID) (CardView, error) {
	if principal.Anonymous() {
		return CardView{}, Unauthenticated("authentication required")
	}

	card, err := s.cards.GetVisibleByID(ctx, cardID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return CardView{}, NotFound("Card not found")
		}
		return CardView{}, fmt.Errorf("load card: %w", err)
	}

	if card.ProfileID != principal.ProfileID {
		return CardView{}, Forbidden("This card does not belong to this profile")
	}
	return maskedView(card), nil
}

// RequestBlock transitions the principal's card to REQUEST_BLOCK, the
// pending state an administrator later resolves. A BLOCKED card is
// rejected; a repeated request on a REQUEST_BLOCK card is an idempotent
// no-op transition.
func (s *CardService) RequestBlock(ctx context.Context, principal types.Principal, cardID uuid.UUID) error {
	if principal.Anonymous() {
		return Unauthenticated("authentication required")
	}

	card, err := s.cards.GetVisibleByID(ctx, cardID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return NotFound("Card not found")
		}
		return fmt.Errorf("load card: %w", err)
	}

	if card.ProfileID != principal.ProfileID {
		return Forbidden("This card does not belong to your profile")
	}
	if card.Status == types.CardBlocked {
		return BadRequest("Card is already blocked")
	}

	if err := s.cards.SetStatus(ctx, cardID, types.CardRequestBlock); err != nil {
		return fmt.Errorf("set status: %w", err)
	}

	s.log.Infof("block requested for card %s", cardID)
	return nil
}

// Delete logically deletes the card. Owners may delete their own cards;
// admins may delete any card.
func (s *CardService) Delete(ctx context.Context, principal types.Principal, cardID uuid.UUID) error {
	if principal.Anonymous() {
		return Unauthenticated("authentication required")
	}

	card, err := s.cards.GetVisibleByID(ctx, cardID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return NotFound("Card not found")
		}
		return fmt.Errorf("load card: %w", err)
	}

	if !principal.IsAdmin() && card.ProfileID != principal.ProfileID {
		return Forbidden("This card does not belong to this profile")
	}

	if err := s.cards.SetInvisible(ctx, cardID); err != nil {
		return fmt.Errorf("delete card: %w", err)
	}

	s.log.Infof("card deleted: %s", cardID)
	return nil
}

// Filter returns one page of visible cards whose number contains the given
// substring, masked. Non-admin callers only see their own cards.
func (s *CardService) Filter(ctx context.Context, principal types.Principal, number string, offset, limit int) ([]CardView, int, error) {
	if principal.Anonymous() {
		return nil, 0, Unauthenticated("authentication required")
	}

	if _, err := s.profiles.GetVisibleByID(ctx, principal.ProfileID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, 0, NotFound("Profile not found")
		}
		return nil, 0, fmt.Errorf("load profile: %w", err)
	}

	ownerID := principal.ProfileID
	if principal.IsAdmin() {
		ownerID = uuid.Nil
	}

	cards, total, err := s.cards.Filter(ctx, number, ownerID, offset, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("filter cards: %w", err)
	}
	return maskedViews(cards), total, nil
}

// ListAll returns one page over every card with full numbers. Admin only.
func (s *CardService) ListAll(ctx context.Context, principal types.Principal, offset, limit int) ([]CardView, int, error) {
	if !principal.IsAdmin() {
		return nil, 0, Forbidden("Admin privileges are required")
	}

	cards, total, err := s.cards.ListAll(ctx, offset, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("list cards: %w", err)
	}

	views := make([]CardView, 0, len(cards))
	for _, c := range cards {
		views = append(views, fullView(c))
	}
	return views, total, nil
}

// GetByAdmin returns any card, deleted ones included, with its full number.
func (s *CardService) GetByAdmin(ctx context.Context, principal types.Principal, cardID uuid.UUID) (CardView, error) {
	if !principal.IsAdmin() {
		return CardView{}, Forbidden("Admin privileges are required")
	}

	card, err := s.cards.GetByID(ctx, cardID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return CardView{}, NotFound("Card not found")
		}
		return CardView{}, fmt.Errorf("load card: %w", err)
	}
	return fullView(card), nil
}

// UpdateByAdmin applies a partial update to a visible card. Status from the
// update is applied first; a provided expiry date may then override it: a
// future expiry re-activates any non-BLOCKED card, a past one expires the
// card. BLOCKED is sticky across expiry updates unless the update sets a
// status explicitly.
func (s *CardService) UpdateByAdmin(ctx context.Context, principal types.Principal, cardID uuid.UUID, update CardUpdate) (CardView, error) {
	if !principal.IsAdmin() {
		return CardView{}, Forbidden("Admin privileges are required")
	}

	card, err := s.cards.GetVisibleByID(ctx, cardID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return CardView{}, NotFound("Card not found")
		}
		return CardView{}, fmt.Errorf("load card: %w", err)
	}

	if update.Status != nil {
		card.Status = *update.Status
	}
	if update.Balance != nil {
		card.Balance = *update.Balance
	}
	if update.ExpiresAt != nil {
		now := time.Now()
		card.ExpiresAt = *update.ExpiresAt
		if card.ExpiresAt.After(now) && card.Status != types.CardBlocked {
			card.Status = types.CardActive
		}
		if card.ExpiresAt.Before(now) {
			card.Status = types.CardExpired
		}
	}

	if err := s.cards.Update(ctx, card); err != nil {
		return CardView{}, fmt.Errorf("update card: %w", err)
	}

	s.log.Infof("card updated by admin: %s", cardID)
	return fullView(card), nil
}

// ChangeStatus writes the card status unconditionally. The route is
// admin-gated upstream.
func (s *CardService) ChangeStatus(ctx context.Context, principal types.Principal, cardID uuid.UUID, status types.CardStatus) error {
	if principal.Anonymous() {
		return Unauthenticated("authentication required")
	}

	if err := s.cards.SetStatus(ctx, cardID, status); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return NotFound("Card not found")
		}
		return fmt.Errorf("set status: %w", err)
	}

	s.log.Infof("card %s status changed to %s", cardID, status)
	return nil
}

// checkCardStatus rejects blocked and expired cards on the owner read
// path. An expired card has its status rewritten to EXPIRED on the loaded
// copy only; the read stays side-effect-free.
func checkCardStatus(card *types.Card) error {
	if card.Status == types.CardBlocked {
		return BadRequest("This card is blocked. Operation not allowed.")
	}
	if card.Expired(time.Now()) {
		card.Status = types.CardExpired
		return BadRequest("This card is expired. Operation not allowed.")
	}
	return nil
}

func fullView(card types.Card) CardView {
	return CardView{
		ID:        card.ID,
		OwnerName: card.OwnerName,
		Number:    card.CardNumber,
		Balance:   card.Balance,
		Status:    card.Status,
		ExpiresAt: card.ExpiresAt,
	}
}

func maskedView(card types.Card) CardView {
	view := fullView(card)
	view.Number = types.MaskNumber(card.CardNumber)
	switch card.Status {
	case types.CardBlocked:
		view.Note = "This card is blocked. Operation not allowed."
	case types.CardExpired:
		view.Note = "This card is expired. Operation not allowed."
	}
	return view
}

func maskedViews(cards []types.Card) []CardView {
	views := make([]CardView, 0, len(cards))
	for _, c := range cards {
		views = append(views, maskedView(c))
	}
	return views
}
