package types

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CardStatus is the lifecycle state of a card.
//
// ACTIVE cards can send and receive transfers. REQUEST_BLOCK is a pending
// state entered by the owner; only an administrator advances it to BLOCKED
// or reverts it to ACTIVE. EXPIRED is derived from the expiry date and can
// be revived by an administrator moving the expiry date forward.
type CardStatus string

const (
	CardActive       CardStatus = "ACTIVE"
	CardBlocked      CardStatus = "BLOCKED"
	CardRequestBlock CardStatus = "REQUEST_BLOCK"
	CardExpired      CardStatus = "EXPIRED"
)

// ParseCardStatus validates a client-supplied card status value.
func ParseCardStatus(s string) (CardStatus, error) {
	switch CardStatus(s) {
	case CardActive, CardBlocked, CardRequestBlock, CardExpired:
		return CardStatus(s), nil
	default:
		return "", fmt.Errorf("unknown card status %q", s)
	}
}

// Card is a money-holding entity owned by a profile.
type Card struct {
	ID uuid.UUID `json:"id" db:"id"`

	// CardNumber is exactly 16 decimal digits.
	CardNumber string `json:"card_number" db:"card_number"`

	CreatedAt time.Time `json:"created_at" db:"created_date"`

	// ExpiresAt is set to CreatedAt + 4 years on creation.
	ExpiresAt time.Time `json:"expires_at" db:"exp_date"`

	Status CardStatus `json:"status" db:"status"`

	// Balance is non-negative at rest, NUMERIC(19,2) in the database.
	Balance decimal.Decimal `json:"balance" db:"balance"`

	// Visible is the logical-deletion flag.
	Visible bool `json:"-" db:"visible"`

	// ProfileID references the owning profile.
	ProfileID uuid.UUID `json:"profile_id" db:"profile_id"`

	// OwnerName is a denormalized projection of the owner's display name,
	// populated by store queries that join the profile table.
	OwnerName string `json:"owner_name,omitempty" db:"owner_name"`
}

// Expired reports whether the card's expiry date has passed at the given
// instant.
func (c Card) Expired(now time.Time) bool {
	return c.ExpiresAt.Before(now)
}

// MaskNumber hides all but the last four characters of a card number,
// grouped "**** **** **** XXXX". Numbers shorter than four characters mask
// to "****" entirely.
func MaskNumber(number string) string {
	if len(number) < 4 {
		return "****"
	}
	return "**** **** **** " + number[len(number)-4:]
}
