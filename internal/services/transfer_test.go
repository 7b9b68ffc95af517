package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/cardvault/apiserver/internal/store"
	"github.com/cardvault/apiserver/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type transferFixture struct {
	sender    types.Card
	recipient types.Card
	principal types.Principal
	cards     *fakeCardRepo
	transfers *fakeTransferRepo
	publisher *fakePublisher
	cache     *fakeHistoryCache
}

func newTransferFixture() *transferFixture {
	ownerID := uuid.New()
	f := &transferFixture{
		sender: types.Card{
			ID:         uuid.New(),
			CardNumber: "4000111122223333",
			Balance:    money("100.00"),
			Status:     types.CardActive,
			ProfileID:  ownerID,
			Visible:    true,
		},
		recipient: types.Card{
			ID:         uuid.New(),
			CardNumber: "4000444455556666",
			Balance:    money("20.00"),
			Status:     types.CardActive,
			ProfileID:  uuid.New(),
			Visible:    true,
		},
		principal: types.Principal{
			ProfileID: ownerID,
			Username:  "alice",
			Roles:     []types.Role{types.RoleUser},
		},
		publisher: &fakePublisher{},
		cache:     newFakeHistoryCache(),
	}

	f.cards = &fakeCardRepo{
		getVisibleByIDFn: func(ctx context.Context, id uuid.UUID) (types.Card, error) {
			switch id {
			case f.sender.ID:
				return f.sender, nil
			case f.recipient.ID:
				return f.recipient, nil
			}
			return types.Card{}, store.ErrNotFound
		},
	}

	nextID := int64(0)
	f.transfers = &fakeTransferRepo{
		executeTransferFn: func(ctx context.Context, fromID, toID uuid.UUID, amount decimal.Decimal, sentAt time.Time) (types.Transaction, error) {
			if f.sender.Balance.LessThan(amount) {
				return types.Transaction{}, store.ErrInsufficientFunds
			}
			nextID++
			return types.Transaction{
				ID:         nextID,
				FromCardID: fromID,
				ToCardID:   toID,
				Amount:     amount,
				SentAt:     sentAt,
				Status:     types.TransactionSuccess,
				Visible:    true,
			}, nil
		},
		recordFailureFn: func(ctx context.Context, fromID, toID uuid.UUID, amount decimal.Decimal, sentAt time.Time) (types.Transaction, error) {
			nextID++
			return types.Transaction{
				ID:         nextID,
				FromCardID: fromID,
				ToCardID:   toID,
				Amount:     amount,
				SentAt:     sentAt,
				Status:     types.TransactionFailed,
				Visible:    true,
			}, nil
		},
	}
	return f
}

func (f *transferFixture) service() *TransferService {
	return NewTransferService(f.cards, f.transfers, f.publisher, f.cache, testLogger())
}

func expectDomainError(t *testing.T, err error, kind Kind, message string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error %q, got nil", message)
	}
	if KindOf(err) != kind {
		t.Fatalf("expected kind %d, got %d (%v)", kind, KindOf(err), err)
	}
	if err.Error() != message {
		t.Fatalf("expected message %q, got %q", message, err.Error())
	}
}

func TestTransferMovesFunds(t *testing.T) {
	f := newTransferFixture()
	svc := f.service()

	view, err := svc.Transfer(context.Background(), f.principal, f.sender.ID, f.recipient.ID, money("30.00"))
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}

	if view.Status != types.TransactionSuccess {
		t.Fatalf("expected SUCCESS, got %s", view.Status)
	}
	if view.FromCardNumber != f.sender.CardNumber || view.ToCardNumber != f.recipient.CardNumber {
		t.Fatalf("unexpected card numbers on view: %q -> %q", view.FromCardNumber, view.ToCardNumber)
	}
	if !view.Amount.Equal(money("30.00")) {
		t.Fatalf("unexpected amount: %s", view.Amount)
	}

	if len(f.publisher.published) != 1 {
		t.Fatalf("expected one published event, got %d", len(f.publisher.published))
	}
	event := f.publisher.published[0]
	if event.channel != TransferChannel {
		t.Fatalf("unexpected channel: %q", event.channel)
	}
	var payload TransferEvent
	if err := json.Unmarshal(event.data, &payload); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if payload.Status != types.TransactionSuccess {
		t.Fatalf("unexpected event status: %s", payload.Status)
	}

	if len(f.cache.invalidated) != 2 {
		t.Fatalf("expected both profiles invalidated, got %v", f.cache.invalidated)
	}
}

func TestTransferExactBalanceSucceeds(t *testing.T) {
	f := newTransferFixture()
	svc := f.service()

	view, err := svc.Transfer(context.Background(), f.principal, f.sender.ID, f.recipient.ID, money("100.00"))
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if view.Status != types.TransactionSuccess {
		t.Fatalf("expected SUCCESS, got %s", view.Status)
	}
}

func TestTransferInsufficientBalanceRecordsFailure(t *testing.T) {
	f := newTransferFixture()
	var failed *types.Transaction
	base := f.transfers.recordFailureFn
	f.transfers.recordFailureFn = func(ctx context.Context, fromID, toID uuid.UUID, amount decimal.Decimal, sentAt time.Time) (types.Transaction, error) {
		entry, err := base(ctx, fromID, toID, amount, sentAt)
		failed = &entry
		return entry, err
	}
	svc := f.service()

	_, err := svc.Transfer(context.Background(), f.principal, f.sender.ID, f.recipient.ID, money("100.01"))
	expectDomainError(t, err, KindBadRequest, "Insufficient balance")

	if failed == nil {
		t.Fatalf("expected a FAILED ledger row to be recorded")
	}
	if failed.Status != types.TransactionFailed {
		t.Fatalf("expected FAILED status, got %s", failed.Status)
	}
	if !failed.Amount.Equal(money("100.01")) {
		t.Fatalf("unexpected failed amount: %s", failed.Amount)
	}

	if len(f.publisher.published) != 1 {
		t.Fatalf("expected the failure event to be published")
	}
	if f.publisher.published[0].attrs["status"] != string(types.TransactionFailed) {
		t.Fatalf("unexpected event attrs: %v", f.publisher.published[0].attrs)
	}
}

func TestTransferUnknownCards(t *testing.T) {
	f := newTransferFixture()
	svc := f.service()

	_, err := svc.Transfer(context.Background(), f.principal, uuid.New(), f.recipient.ID, money("10"))
	expectDomainError(t, err, KindNotFound, "Sender card not found")

	_, err = svc.Transfer(context.Background(), f.principal, f.sender.ID, uuid.New(), money("10"))
	expectDomainError(t, err, KindNotFound, "Recipient card not found")
}

func TestTransferRequiresOwnership(t *testing.T) {
	f := newTransferFixture()
	stranger := types.Principal{
		ProfileID: uuid.New(),
		Username:  "mallory",
		Roles:     []types.Role{types.RoleUser},
	}
	svc := f.service()

	_, err := svc.Transfer(context.Background(), stranger, f.sender.ID, f.recipient.ID, money("10"))
	expectDomainError(t, err, KindForbidden, "You can only transfer from your own card")
}

func TestTransferAdminMayUseAnyCard(t *testing.T) {
	f := newTransferFixture()
	admin := types.Principal{
		ProfileID: uuid.New(),
		Username:  "root",
		Roles:     []types.Role{types.RoleAdmin},
	}
	svc := f.service()

	if _, err := svc.Transfer(context.Background(), admin, f.sender.ID, f.recipient.ID, money("10")); err != nil {
		t.Fatalf("admin transfer: %v", err)
	}
}

func TestTransferRejectsInactiveCards(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(f *transferFixture)
		message string
	}{
		{
			name:    "blocked sender",
			mutate:  func(f *transferFixture) { f.sender.Status = types.CardBlocked },
			message: "Sender Card is not active",
		},
		{
			name:    "expired sender",
			mutate:  func(f *transferFixture) { f.sender.Status = types.CardExpired },
			message: "Sender Card is not active",
		},
		{
			name:    "blocked recipient",
			mutate:  func(f *transferFixture) { f.recipient.Status = types.CardBlocked },
			message: "Recipient Card is not active",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newTransferFixture()
			tt.mutate(f)
			svc := f.service()

			_, err := svc.Transfer(context.Background(), f.principal, f.sender.ID, f.recipient.ID, money("10"))
			expectDomainError(t, err, KindBadRequest, tt.message)
		})
	}
}

func TestTransferByAdminSkipsStatusChecks(t *testing.T) {
	f := newTransferFixture()
	f.sender.Status = types.CardBlocked
	f.recipient.Status = types.CardExpired
	admin := types.Principal{
		ProfileID: uuid.New(),
		Username:  "root",
		Roles:     []types.Role{types.RoleAdmin},
	}
	svc := f.service()

	view, err := svc.TransferByAdmin(context.Background(), admin, f.sender.ID, f.recipient.ID, money("10"))
	if err != nil {
		t.Fatalf("admin transfer: %v", err)
	}
	if view.Status != types.TransactionSuccess {
		t.Fatalf("expected SUCCESS, got %s", view.Status)
	}
}

func TestTransferByAdminRejectsNonAdmins(t *testing.T) {
	f := newTransferFixture()
	svc := f.service()

	_, err := svc.TransferByAdmin(context.Background(), f.principal, f.sender.ID, f.recipient.ID, money("10"))
	expectDomainError(t, err, KindForbidden, "Only admins can transfer")
}

func TestTransferRequiresAuthentication(t *testing.T) {
	f := newTransferFixture()
	svc := f.service()

	_, err := svc.Transfer(context.Background(), types.Principal{}, f.sender.ID, f.recipient.ID, money("10"))
	if KindOf(err) != KindUnauthenticated {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
}

func TestTransferSurvivesPublisherFailure(t *testing.T) {
	f := newTransferFixture()
	f.publisher.err = errors.New("broker down")
	svc := f.service()

	if _, err := svc.Transfer(context.Background(), f.principal, f.sender.ID, f.recipient.ID, money("10")); err != nil {
		t.Fatalf("transfer should not fail when publishing fails: %v", err)
	}
}

func TestTransferWithoutPublisherOrCache(t *testing.T) {
	f := newTransferFixture()
	svc := NewTransferService(f.cards, f.transfers, nil, nil, testLogger())

	if _, err := svc.Transfer(context.Background(), f.principal, f.sender.ID, f.recipient.ID, money("10")); err != nil {
		t.Fatalf("transfer: %v", err)
	}
}

func TestHistoryServedFromCacheAfterFirstRead(t *testing.T) {
	f := newTransferFixture()
	repoCalls := 0
	f.transfers.listByProfileFn = func(ctx context.Context, profileID uuid.UUID, offset, limit int) ([]types.TransferView, int, error) {
		repoCalls++
		if profileID != f.principal.ProfileID {
			t.Fatalf("unexpected profile id: %s", profileID)
		}
		if offset != 10 || limit != 10 {
			t.Fatalf("unexpected paging: offset=%d limit=%d", offset, limit)
		}
		return []types.TransferView{{ID: 7}}, 11, nil
	}
	svc := f.service()

	views, total, err := svc.History(context.Background(), f.principal, 1, 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if total != 11 || len(views) != 1 {
		t.Fatalf("unexpected first page: %d items, total %d", len(views), total)
	}

	if _, _, err := svc.History(context.Background(), f.principal, 1, 10); err != nil {
		t.Fatalf("cached history: %v", err)
	}
	if repoCalls != 1 {
		t.Fatalf("expected one repository read, got %d", repoCalls)
	}
}

func TestHistoryCacheDroppedAfterTransfer(t *testing.T) {
	f := newTransferFixture()
	repoCalls := 0
	f.transfers.listByProfileFn = func(ctx context.Context, profileID uuid.UUID, offset, limit int) ([]types.TransferView, int, error) {
		repoCalls++
		return nil, 0, nil
	}
	svc := f.service()

	if _, _, err := svc.History(context.Background(), f.principal, 0, 10); err != nil {
		t.Fatalf("history: %v", err)
	}
	if _, err := svc.Transfer(context.Background(), f.principal, f.sender.ID, f.recipient.ID, money("10")); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if _, _, err := svc.History(context.Background(), f.principal, 0, 10); err != nil {
		t.Fatalf("history: %v", err)
	}
	if repoCalls != 2 {
		t.Fatalf("expected the cache to be dropped after the transfer, reads: %d", repoCalls)
	}
}

func TestAllTransactionsRequiresAdmin(t *testing.T) {
	f := newTransferFixture()
	f.transfers.listAllFn = func(ctx context.Context, offset, limit int) ([]types.TransferView, int, error) {
		return []types.TransferView{{ID: 1}, {ID: 2}}, 2, nil
	}
	svc := f.service()

	_, _, err := svc.AllTransactions(context.Background(), f.principal, 0, 10)
	expectDomainError(t, err, KindForbidden, "Only admins can view all transactions")

	admin := types.Principal{ProfileID: uuid.New(), Username: "root", Roles: []types.Role{types.RoleAdmin}}
	views, total, err := svc.AllTransactions(context.Background(), admin, 0, 10)
	if err != nil {
		t.Fatalf("all transactions: %v", err)
	}
	if total != 2 || len(views) != 2 {
		t.Fatalf("unexpected page: %d items, total %d", len(views), total)
	}
}
