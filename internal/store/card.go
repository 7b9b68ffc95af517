package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cardvault/apiserver/types"
	"github.com/google/uuid"
)

// CardRepository handles persistence for cards. Every read path except the
// admin GetByID is scoped to visible = TRUE so logically deleted cards
// cannot leak back into the API.
type CardRepository struct {
	db *sql.DB
}

func NewCardRepository(db *sql.DB) *CardRepository {
	return &CardRepository{db: db}
}

const cardColumns = `c.id, c.card_number, c.created_date, c.exp_date, c.status, c.balance, c.visible, c.profile_id, p.name`

const cardFrom = ` FROM card c JOIN profile p ON p.id = c.profile_id `

func scanCard(row *sql.Row) (types.Card, error) {
	var c types.Card
	err := row.Scan(
		&c.ID,
		&c.CardNumber,
		&c.CreatedAt,
		&c.ExpiresAt,
		&c.Status,
		&c.Balance,
		&c.Visible,
		&c.ProfileID,
		&c.OwnerName,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Card{}, ErrNotFound
		}
		return types.Card{}, err
	}
	return c, nil
}

func collectCards(rows *sql.Rows) ([]types.Card, error) {
	defer rows.Close()
	var cards []types.Card
	for rows.Next() {
		var c types.Card
		if err := rows.Scan(
			&c.ID,
			&c.CardNumber,
			&c.CreatedAt,
			&c.ExpiresAt,
			&c.Status,
			&c.Balance,
			&c.Visible,
			&c.ProfileID,
			&c.OwnerName,
		); err != nil {
			return nil, err
		}
		cards = append(cards, c)
	}
	return cards, rows.Err()
}

// GetVisibleByID returns a card that has not been logically deleted.
func (r *CardRepository) GetVisibleByID(ctx context.Context, id uuid.UUID) (types.Card, error) {
	const query = `SELECT ` + cardColumns + cardFrom + `WHERE c.id = $1 AND c.visible = TRUE`
	return scanCard(r.db.QueryRowContext(ctx, query, id))
}

// GetVisibleByIDAndOwner returns a visible card only if it belongs to the
// given profile.
func (r *CardRepository) GetVisibleByIDAndOwner(ctx context.Context, id, profileID uuid.UUID) (types.Card, error) {
	const query = `SELECT ` + cardColumns + cardFrom + `WHERE c.id = $1 AND c.profile_id = $2 AND c.visible = TRUE`
	return scanCard(r.db.QueryRowContext(ctx, query, id, profileID))
}

// GetByID returns a card regardless of visibility. Admin read path only.
func (r *CardRepository) GetByID(ctx context.Context, id uuid.UUID) (types.Card, error) {
	const query = `SELECT ` + cardColumns + cardFrom + `WHERE c.id = $1`
	return scanCard(r.db.QueryRowContext(ctx, query, id))
}

// ListVisibleByOwner returns one page of the profile's visible cards,
// newest first, together with the total row count under the same predicate.
func (r *CardRepository) ListVisibleByOwner(ctx context.Context, profileID uuid.UUID, offset, limit int) ([]types.Card, int, error) {
	const query = `
		SELECT ` + cardColumns + cardFrom + `
		WHERE c.profile_id = $1 AND c.visible = TRUE
		ORDER BY c.created_date DESC
		OFFSET $2 LIMIT $3`
	rows, err := r.db.QueryContext(ctx, query, profileID, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	cards, err := collectCards(rows)
	if err != nil {
		return nil, 0, err
	}

	const countQuery = `SELECT COUNT(*) FROM card WHERE profile_id = $1 AND visible = TRUE`
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, profileID).Scan(&total); err != nil {
		return nil, 0, err
	}
	return cards, total, nil
}

// ListAll returns one page over every card, newest first, with the true
// total row count.
func (r *CardRepository) ListAll(ctx context.Context, offset, limit int) ([]types.Card, int, error) {
	const query = `
		SELECT ` + cardColumns + cardFrom + `
		ORDER BY c.created_date DESC
		OFFSET $1 LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	cards, err := collectCards(rows)
	if err != nil {
		return nil, 0, err
	}

	const countQuery = `SELECT COUNT(*) FROM card`
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery).Scan(&total); err != nil {
		return nil, 0, err
	}
	return cards, total, nil
}

// Filter returns one page of visible cards matching an optional substring
// of the card number, optionally scoped to an owner (uuid.Nil means no
// owner scoping). The count query runs with the same predicate set.
func (r *CardRepository) Filter(ctx context.Context, number string, ownerID uuid.UUID, offset, limit int) ([]types.Card, int, error) {
	where := ` WHERE c.visible = TRUE`
	var args []any

	if ownerID != uuid.Nil {
		args = append(args, ownerID)
		where += fmt.Sprintf(" AND c.profile_id = $%d", len(args))
	}
	if number != "" {
		args = append(args, "%"+number+"%")
		where += fmt.Sprintf(" AND c.card_number LIKE $%d", len(args))
	}

	countArgs := make([]any, len(args))
	copy(countArgs, args)

	args = append(args, offset)
	query := `SELECT ` + cardColumns + cardFrom + where +
		fmt.Sprintf(" ORDER BY c.created_date DESC OFFSET $%d", len(args))
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	cards, err := collectCards(rows)
	if err != nil {
		return nil, 0, err
	}

	countQuery := `SELECT COUNT(*)` + cardFrom + where
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}
	return cards, total, nil
}

// Create inserts a new card.
func (r *CardRepository) Create(ctx context.Context, card types.Card) (types.Card, error) {
	card.ID = uuid.New()
	card.CreatedAt = time.Now()
	card.ExpiresAt = card.CreatedAt.AddDate(4, 0, 0)
	card.Status = types.CardActive
	card.Visible = true

	const query = `
		INSERT INTO card (id, card_number, created_date, exp_date, status, balance, visible, profile_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err := r.db.ExecContext(
		ctx,
		query,
		card.ID,
		card.CardNumber,
		card.CreatedAt,
		card.ExpiresAt,
		card.Status,
		card.Balance,
		card.Visible,
		card.ProfileID,
	); err != nil {
		return types.Card{}, err
	}
	return card, nil
}

// Update persists the card's mutable fields (status, balance, expiry date).
func (r *CardRepository) Update(ctx context.Context, card types.Card) error {
	const query = `
		UPDATE card
		SET status = $1,
			balance = $2,
			exp_date = $3
		WHERE id = $4`
	result, err := r.db.ExecContext(ctx, query, card.Status, card.Balance, card.ExpiresAt, card.ID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetStatus writes the card status unconditionally.
func (r *CardRepository) SetStatus(ctx context.Context, id uuid.UUID, status types.CardStatus) error {
	const query = `UPDATE card SET status = $1 WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, status, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetInvisible logically deletes the card. The row stays for history.
func (r *CardRepository) SetInvisible(ctx context.Context, id uuid.UUID) error {
	const query = `UPDATE card SET visible = FALSE WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
