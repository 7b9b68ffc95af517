package services

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/cardvault/apiserver/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

type fakeProfileRepo struct {
	getVisibleByIDFn       func(ctx context.Context, id uuid.UUID) (types.Profile, error)
	getVisibleByUsernameFn func(ctx context.Context, username string) (types.Profile, error)
	getByIDFn              func(ctx context.Context, id uuid.UUID) (types.Profile, error)
	listFn                 func(ctx context.Context) ([]types.Profile, error)
	createFn               func(ctx context.Context, profile types.Profile) (types.Profile, error)
	setStatusFn            func(ctx context.Context, id uuid.UUID, status types.ProfileStatus) error
	setInvisibleFn         func(ctx context.Context, id uuid.UUID) error
}

func (f *fakeProfileRepo) GetVisibleByID(ctx context.Context, id uuid.UUID) (types.Profile, error) {
	return f.getVisibleByIDFn(ctx, id)
}

func (f *fakeProfileRepo) GetVisibleByUsername(ctx context.Context, username string) (types.Profile, error) {
	return f.getVisibleByUsernameFn(ctx, username)
}

func (f *fakeProfileRepo) GetByID(ctx context.Context, id uuid.UUID) (types.Profile, error) {
	return f.getByIDFn(ctx, id)
}

func (f *fakeProfileRepo) List(ctx context.Context) ([]types.Profile, error) {
	return f.listFn(ctx)
}

func (f *fakeProfileRepo) Create(ctx context.Context, profile types.Profile) (types.Profile, error) {
	return f.createFn(ctx, profile)
}

func (f *fakeProfileRepo) SetStatus(ctx context.Context, id uuid.UUID, status types.ProfileStatus) error {
	return f.setStatusFn(ctx, id, status)
}

func (f *fakeProfileRepo) SetInvisible(ctx context.Context, id uuid.UUID) error {
	return f.setInvisibleFn(ctx, id)
}

type fakeRoleRepo struct {
	assignFn        func(ctx context.Context, profileID uuid.UUID, roles []types.Role) error
	listByProfileFn func(ctx context.Context, profileID uuid.UUID) ([]types.Role, error)
}

func (f *fakeRoleRepo) Assign(ctx context.Context, profileID uuid.UUID, roles []types.Role) error {
	return f.assignFn(ctx, profileID, roles)
}

func (f *fakeRoleRepo) ListByProfile(ctx context.Context, profileID uuid.UUID) ([]types.Role, error) {
	return f.listByProfileFn(ctx, profileID)
}

type fakeCardRepo struct {
	getVisibleByIDFn         func(ctx context.Context, id uuid.UUID) (types.Card, error)
	getVisibleByIDAndOwnerFn func(ctx context.Context, id, profileID uuid.UUID) (types.Card, error)
	getByIDFn                func(ctx context.Context, id uuid.UUID) (types.Card, error)
	listVisibleByOwnerFn     func(ctx context.Context, profileID uuid.UUID, offset, limit int) ([]types.Card, int, error)
	listAllFn                func(ctx context.Context, offset, limit int) ([]types.Card, int, error)
	filterFn                 func(ctx context.Context, number string, ownerID uuid.UUID, offset, limit int) ([]types.Card, int, error)
	createFn                 func(ctx context.Context, card types.Card) (types.Card, error)
	updateFn                 func(ctx context.Context, card types.Card) error
	setStatusFn              func(ctx context.Context, id uuid.UUID, status types.CardStatus) error
	setInvisibleFn           func(ctx context.Context, id uuid.UUID) error
}

func (f *fakeCardRepo) GetVisibleByID(ctx context.Context, id uuid.UUID) (types.Card, error) {
	return f.getVisibleByIDFn(ctx, id)
}

func (f *fakeCardRepo) GetVisibleByIDAndOwner(ctx context.Context, id, profileID uuid.UUID) (types.Card, error) {
	return f.getVisibleByIDAndOwnerFn(ctx, id, profileID)
}

func (f *fakeCardRepo) GetByID(ctx context.Context, id uuid.UUID) (types.Card, error) {
	return f.getByIDFn(ctx, id)
}

func (f *fakeCardRepo) ListVisibleByOwner(ctx context.Context, profileID uuid.UUID, offset, limit int) ([]types.Card, int, error) {
	return f.listVisibleByOwnerFn(ctx, profileID, offset, limit)
}

func (f *fakeCardRepo) ListAll(ctx context.Context, offset, limit int) ([]types.Card, int, error) {
	return f.listAllFn(ctx, offset, limit)
}

func (f *fakeCardRepo) Filter(ctx context.Context, number string, ownerID uuid.UUID, offset, limit int) ([]types.Card, int, error) {
	return f.filterFn(ctx, number, ownerID, offset, limit)
}

func (f *fakeCardRepo) Create(ctx context.Context, card types.Card) (types.Card, error) {
	return f.createFn(ctx, card)
}

func (f *fakeCardRepo) Update(ctx context.Context, card types.Card) error {
	return f.updateFn(ctx, card)
}

func (f *fakeCardRepo) SetStatus(ctx context.Context, id uuid.UUID, status types.CardStatus) error {
	return f.setStatusFn(ctx, id, status)
}

func (f *fakeCardRepo) SetInvisible(ctx context.Context, id uuid.UUID) error {
	return f.setInvisibleFn(ctx, id)
}

type fakeTransferRepo struct {
	executeTransferFn func(ctx context.Context, fromID, toID uuid.UUID, amount decimal.Decimal, sentAt time.Time) (types.Transaction, error)
	recordFailureFn   func(ctx context.Context, fromID, toID uuid.UUID, amount decimal.Decimal, sentAt time.Time) (types.Transaction, error)
	listByProfileFn   func(ctx context.Context, profileID uuid.UUID, offset, limit int) ([]types.TransferView, int, error)
	listAllFn         func(ctx context.Context, offset, limit int) ([]types.TransferView, int, error)
}

func (f *fakeTransferRepo) ExecuteTransfer(ctx context.Context, fromID, toID uuid.UUID, amount decimal.Decimal, sentAt time.Time) (types.Transaction, error) {
	return f.executeTransferFn(ctx, fromID, toID, amount, sentAt)
}

func (f *fakeTransferRepo) RecordFailure(ctx context.Context, fromID, toID uuid.UUID, amount decimal.Decimal, sentAt time.Time) (types.Transaction, error) {
	return f.recordFailureFn(ctx, fromID, toID, amount, sentAt)
}

func (f *fakeTransferRepo) ListByProfile(ctx context.Context, profileID uuid.UUID, offset, limit int) ([]types.TransferView, int, error) {
	return f.listByProfileFn(ctx, profileID, offset, limit)
}

func (f *fakeTransferRepo) ListAll(ctx context.Context, offset, limit int) ([]types.TransferView, int, error) {
	return f.listAllFn(ctx, offset, limit)
}

type publishedEvent struct {
	channel string
	data    []byte
	attrs   map[string]string
}

type fakePublisher struct {
	published []publishedEvent
	err       error
}

func (f *fakePublisher) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.published = append(f.published, publishedEvent{channel: channel, data: data, attrs: attrs})
	return "msg-1", nil
}

type fakeHistoryCache struct {
	pages       map[string]struct {
		items []types.TransferView
		total int
	}
	invalidated []uuid.UUID
	sets        int
}

func newFakeHistoryCache() *fakeHistoryCache {
	return &fakeHistoryCache{pages: map[string]struct {
		items []types.TransferView
		total int
	}{}}
}

func cacheKey(profileID uuid.UUID, page, size int) string {
	return fmt.Sprintf("%s:%d:%d", profileID, page, size)
}

func (f *fakeHistoryCache) Get(ctx context.Context, profileID uuid.UUID, page, size int) ([]types.TransferView, int, bool) {
	cached, ok := f.pages[cacheKey(profileID, page, size)]
	if !ok {
		return nil, 0, false
	}
	return cached.items, cached.total, true
}

func (f *fakeHistoryCache) Set(ctx context.Context, profileID uuid.UUID, page, size int, items []types.TransferView, total int) {
	f.sets++
	f.pages[cacheKey(profileID, page, size)] = struct {
		items []types.TransferView
		total int
	}{items, total}
}

func (f *fakeHistoryCache) Invalidate(ctx context.Context, profileIDs ...uuid.UUID) {
	f.invalidated = append(f.invalidated, profileIDs...)
	f.pages = map[string]struct {
		items []types.TransferView
		total int
	}{}
}
