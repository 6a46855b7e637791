package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"cochat-backend/internal/mailsync"
	messengerdomain "cochat-backend/internal/messenger/domain"
	"cochat-backend/internal/messenger/repository"
	"cochat-backend/pkg/database"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func newAccounts(t *testing.T) repository.LinkedAccountRepository {
	accounts, _ := newAccountsWithStore(t)
	return accounts
}

func newAccountsWithStore(t *testing.T) (repository.LinkedAccountRepository, *mailsync.GormStore) {
	t.Helper()
	db, err := database.NewInMemory(&messengerdomain.LinkedAccount{})
	require.NoError(t, err)
	return repository.NewLinkedAccountRepository(db), mailsync.NewGormStore(db)
}

type fakeWatch struct {
	watched []string
}

func (f *fakeWatch) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if refreshToken == "revoked" {
		return nil, errors.New("invalid_grant")
	}
	return &oauth2.Token{AccessToken: "fresh-" + refreshToken, Expiry: time.Now().Add(time.Hour)}, nil
}

func (f *fakeWatch) Watch(ctx context.Context, accessToken, topicName string) (uint64, time.Time, error) {
	f.watched = append(f.watched, accessToken)
	return 1, time.Now().Add(7 * 24 * time.Hour), nil
}

type fakeRefresher struct{}

func (fakeRefresher) FetchDelta(ctx context.Context, cred mailsync.Credential, since string) ([]mailsync.IncomingRecord, bool, error) {
	return nil, false, nil
}

func (fakeRefresher) RefreshCredential(ctx context.Context, refreshToken string) (*mailsync.Credential, error) {
	expiry := time.Now().Add(60 * 24 * time.Hour)
	return &mailsync.Credential{AccessToken: refreshToken + "+", RefreshToken: refreshToken + "+", Expiry: &expiry}, nil
}

func TestRenewAll(t *testing.T) {
	accounts, store := newAccountsWithStore(t)
	soon := time.Now().Add(time.Hour)
	later := time.Now().Add(6 * 24 * time.Hour)

	due := &messengerdomain.LinkedAccount{UserID: "u", Provider: messengerdomain.ProviderGmail, ProviderAccountID: "due@gmail.com", RefreshToken: "r1", WatchExpiry: &soon}
	fresh := &messengerdomain.LinkedAccount{UserID: "u", Provider: messengerdomain.ProviderGmail, ProviderAccountID: "fresh@gmail.com", RefreshToken: "r2", WatchExpiry: &later}
	revoked := &messengerdomain.LinkedAccount{UserID: "u", Provider: messengerdomain.ProviderGmail, ProviderAccountID: "gone@gmail.com", RefreshToken: "revoked"}
	ig := &messengerdomain.LinkedAccount{UserID: "u", Provider: messengerdomain.ProviderInstagram, ProviderAccountID: "178", AccessToken: "tok", RefreshToken: "tok", TokenExpiry: &soon}
	for _, a := range []*messengerdomain.LinkedAccount{due, fresh, revoked, ig} {
		require.NoError(t, accounts.Upsert(a))
	}

	watch := &fakeWatch{}
	cursor := mailsync.NewCursor(store, mailsync.NewRegistry())
	r := NewRenewer(accounts, cursor, watch, fakeRefresher{}, "projects/p/topics/t", time.Hour)
	r.RenewAll(context.Background())

	assert.Equal(t, []string{"fresh-r1"}, watch.watched)

	got, err := accounts.FindByID(due.ID)
	require.NoError(t, err)
	assert.Equal(t, "fresh-r1", got.AccessToken)
	require.NotNil(t, got.WatchExpiry)
	assert.True(t, got.WatchExpiry.After(later))

	gotIG, err := accounts.FindByID(ig.ID)
	require.NoError(t, err)
	assert.Equal(t, "tok+", gotIG.AccessToken)
	assert.True(t, gotIG.TokenExpiry.After(later))
}

// rotatingWatch rotates the stored refresh token the way a sync pass that
// refreshed first would, then answers without issuing a new refresh token.
type rotatingWatch struct {
	fakeWatch
	store     *mailsync.GormStore
	accountID string
}

func (f *rotatingWatch) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if _, err := f.store.Commit(ctx, &mailsync.Commit{
		AccountID:  f.accountID,
		Credential: &mailsync.Credential{AccessToken: "sync-access", RefreshToken: "rotated"},
	}); err != nil {
		return nil, err
	}
	return &oauth2.Token{AccessToken: "renewed-access", Expiry: time.Now().Add(time.Hour)}, nil
}

func TestRenewWatchKeepsRotatedRefreshToken(t *testing.T) {
	accounts, store := newAccountsWithStore(t)
	soon := time.Now().Add(time.Hour)
	acc := &messengerdomain.LinkedAccount{UserID: "u", Provider: messengerdomain.ProviderGmail, ProviderAccountID: "due@gmail.com", AccessToken: "a1", RefreshToken: "r1", WatchExpiry: &soon}
	require.NoError(t, accounts.Upsert(acc))

	watch := &rotatingWatch{store: store, accountID: acc.ID}
	r := NewRenewer(accounts, mailsync.NewCursor(store, mailsync.NewRegistry()), watch, nil, "projects/p/topics/t", time.Hour)
	r.RenewAll(context.Background())

	got, err := accounts.FindByID(acc.ID)
	require.NoError(t, err)
	assert.Equal(t, "rotated", got.RefreshToken)
	assert.Equal(t, "renewed-access", got.AccessToken)
	assert.Equal(t, []string{"renewed-access"}, watch.watched)
}

// blockingUpdater records whether a credential change was attempted.
type blockingUpdater struct {
	calls []string
}

func (b *blockingUpdater) UpdateCredential(ctx context.Context, provider, providerAccountID string, update mailsync.CredentialUpdate) (*mailsync.Credential, error) {
	b.calls = append(b.calls, provider+":"+providerAccountID)
	return nil, errors.New("lease wait cancelled")
}

func TestRenewerWritesOnlyThroughUpdater(t *testing.T) {
	accounts := newAccounts(t)
	soon := time.Now().Add(time.Hour)
	acc := &messengerdomain.LinkedAccount{UserID: "u", Provider: messengerdomain.ProviderInstagram, ProviderAccountID: "178", AccessToken: "tok", RefreshToken: "tok", TokenExpiry: &soon}
	require.NoError(t, accounts.Upsert(acc))

	updater := &blockingUpdater{}
	r := NewRenewer(accounts, updater, nil, fakeRefresher{}, "", time.Hour)
	r.RenewAll(context.Background())

	assert.Equal(t, []string{"instagram:178"}, updater.calls)
	got, err := accounts.FindByID(acc.ID)
	require.NoError(t, err)
	assert.Equal(t, "tok", got.AccessToken)
}

type fakeHead struct {
	markers map[string]string
}

func (f *fakeHead) Head(ctx context.Context, cred mailsync.Credential) (string, error) {
	m, ok := f.markers[cred.AccountID]
	if !ok {
		return "", errors.New("connection refused")
	}
	return m, nil
}

type fakeSyncer struct {
	markers []string
}

func (f *fakeSyncer) HandleNotification(ctx context.Context, provider, providerAccountID, marker string) (*mailsync.Result, error) {
	f.markers = append(f.markers, providerAccountID+"@"+marker)
	return &mailsync.Result{Outcome: mailsync.OutcomeSynced, Cursor: marker}, nil
}

func TestPollAllSkipsUnchangedMailboxes(t *testing.T) {
	accounts := newAccounts(t)
	same := "1:10"
	for _, a := range []*messengerdomain.LinkedAccount{
		{UserID: "u", Provider: messengerdomain.ProviderIMAP, ProviderAccountID: "moved@x", HistoryID: &same},
		{UserID: "u", Provider: messengerdomain.ProviderIMAP, ProviderAccountID: "idle@x", HistoryID: &same},
		{UserID: "u", Provider: messengerdomain.ProviderIMAP, ProviderAccountID: "down@x"},
		{UserID: "u", Provider: messengerdomain.ProviderGmail, ProviderAccountID: "g@gmail.com"},
	} {
		require.NoError(t, accounts.Upsert(a))
	}

	syncer := &fakeSyncer{}
	p := NewIMAPPoller(accounts, &fakeHead{markers: map[string]string{"moved@x": "1:12", "idle@x": "1:10"}}, syncer, time.Minute)
	p.PollAll(context.Background())

	assert.Equal(t, []string{"moved@x@1:12"}, syncer.markers)
}

func TestStartStop(t *testing.T) {
	syncer := &fakeSyncer{}
	p := NewIMAPPoller(newAccounts(t), &fakeHead{}, syncer, time.Hour)
	p.Start()
	p.Stop()
}
