package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/cardvault/apiserver/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionRepository handles the append-only transfer ledger and the
// atomic balance movement that accompanies a SUCCESS row.
type TransactionRepository struct {
	db *sql.DB
}

func NewTransactionRepository(db *sql.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

const insertTransaction = `
	INSERT INTO transaction (from_card, to_card, amount, sent_date, status, visible)
	VALUES ($1, $2, $3, $4, $5, TRUE)
	RETURNING id`

// ExecuteTransfer debits the sender, credits the recipient and records the
// SUCCESS ledger row as one database transaction. Both card rows are locked
// with SELECT ... FOR UPDATE in ascending id order so that concurrent
// transfers over the same cards serialize without deadlocking. The ledger
// row only becomes visible once both balance updates are committed.
//
// Returns ErrInsufficientFunds, without touching either balance, when the
// sender's locked balance is below amount.
func (r *TransactionRepository) ExecuteTransfer(ctx context.Context, fromID, toID uuid.UUID, amount decimal.Decimal, sentAt time.Time) (types.Transaction, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return types.Transaction{}, err
	}
	defer tx.Rollback()

	fromBalance, toBalance, err := lockBalances(ctx, tx, fromID, toID)
	if err != nil {
		return types.Transaction{}, err
	}

	if fromBalance.LessThan(amount) {
		return types.Transaction{}, ErrInsufficientFunds
	}

	// A self-transfer nets to zero; skip the balance writes so the single
	// locked row is not debited and credited out of order.
	if fromID != toID {
		const update = `UPDATE card SET balance = $1 WHERE id = $2`
		if _, err := tx.ExecContext(ctx, update, fromBalance.Sub(amount), fromID); err != nil {
			return types.Transaction{}, err
		}
		if _, err := tx.ExecContext(ctx, update, toBalance.Add(amount), toID); err != nil {
			return types.Transaction{}, err
		}
	}

	entry := types.Transaction{
		FromCardID: fromID,
		ToCardID:   toID,
		Amount:     amount,
		SentAt:     sentAt,
		Status:     types.TransactionSuccess,
		Visible:    true,
	}
	if err := tx.QueryRowContext(ctx, insertTransaction,
		entry.FromCardID, entry.ToCardID, entry.Amount, entry.SentAt, entry.Status,
	).Scan(&entry.ID); err != nil {
		return types.Transaction{}, err
	}

	if err := tx.Commit(); err != nil {
		return types.Transaction{}, err
	}
	return entry, nil
}

// lockBalances acquires row locks on both cards in ascending id order and
// returns their current balances.
func lockBalances(ctx context.Context, tx *sql.Tx, fromID, toID uuid.UUID) (decimal.Decimal, decimal.Decimal, error) {
	const query = `SELECT balance FROM card WHERE id = $1 FOR UPDATE`

	lock := func(id uuid.UUID) (decimal.Decimal, error) {
		var balance decimal.Decimal
		err := tx.QueryRowContext(ctx, query, id).Scan(&balance)
		if err == sql.ErrNoRows {
			return decimal.Decimal{}, ErrNotFound
		}
		return balance, err
	}

	if fromID == toID {
		balance, err := lock(fromID)
		return balance, balance, err
	}

	first, second := fromID, toID
	if second.String() < first.String() {
		first, second = second, first
	}

	firstBalance, err := lock(first)
	if err != nil {
		return decimal.Decimal{}, decimal.Decimal{}, err
	}
	secondBalance, err := lock(second)
	if err != nil {
		return decimal.Decimal{}, decimal.Decimal{}, err
	}

	if first == fromID {
		return firstBalance, secondBalance, nil
	}
	return secondBalance, firstBalance, nil
}

// RecordFailure appends a FAILED ledger row on the pool connection, outside
// any surrounding transfer transaction. The attempt record therefore
// commits independently and survives the rollback that accompanies the
// insufficient-balance error.
func (r *TransactionRepository) RecordFailure(ctx context.Context, fromID, toID uuid.UUID, amount decimal.Decimal, sentAt time.Time) (types.Transaction, error) {
	entry := types.Transaction{
		FromCardID: fromID,
		ToCardID:   toID,
		Amount:     amount,
		SentAt:     sentAt,
		Status:     types.TransactionFailed,
		Visible:    true,
	}
	if err := r.db.QueryRowContext(ctx, insertTransaction,
		entry.FromCardID, entry.ToCardID, entry.Amount, entry.SentAt, entry.Status,
	).Scan(&entry.ID); err != nil {
		return types.Transaction{}, err
	}
	return entry, nil
}

const transferViewColumns = `t.id, f.card_number, s.card_number, t.amount, t.status, t.sent_date`

const transferViewFrom = `
	FROM transaction t
	JOIN card f ON f.id = t.from_card
	JOIN card s ON s.id = t.to_card`

func collectTransferViews(rows *sql.Rows) ([]types.TransferView, error) {
	defer rows.Close()
	var views []types.TransferView
	for rows.Next() {
		var v types.TransferView
		if err := rows.Scan(&v.ID, &v.FromCardNumber, &v.ToCardNumber, &v.Amount, &v.Status, &v.SentAt); err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, rows.Err()
}

// ListByProfile returns one page of ledger rows where the profile owns
// either card, newest first, with the true total count.
func (r *TransactionRepository) ListByProfile(ctx context.Context, profileID uuid.UUID, offset, limit int) ([]types.TransferView, int, error) {
	const query = `
		SELECT ` + transferViewColumns + transferViewFrom + `
		WHERE f.profile_id = $1 OR s.profile_id = $1
		ORDER BY t.sent_date DESC, t.id DESC
		OFFSET $2 LIMIT $3`
	rows, err := r.db.QueryContext(ctx, query, profileID, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	views, err := collectTransferViews(rows)
	if err != nil {
		return nil, 0, err
	}

	const countQuery = `
		SELECT COUNT(*)` + transferViewFrom + `
		WHERE f.profile_id = $1 OR s.profile_id = $1`
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, profileID).Scan(&total); err != nil {
		return nil, 0, err
	}
	return views, total, nil
}

// ListAll returns one page over the whole ledger, newest first, with the
// true total count.
func (r *TransactionRepository) ListAll(ctx context.Context, offset, limit int) ([]types.TransferView, int, error) {
	const query = `
		SELECT ` + transferViewColumns + transferViewFrom + `
		ORDER BY t.sent_date DESC, t.id DESC
		OFFSET $1 LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	views, err := collectTransferViews(rows)
	if err != nil {
		return nil, 0, err
	}

	const countQuery = `SELECT COUNT(*) FROM transaction`
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery).Scan(&total); err != nil {
		return nil, 0, err
	}
	return views, total, nil
}
