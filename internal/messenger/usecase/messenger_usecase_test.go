package usecase

import (
	"context"
	"net/url"
	"testing"
	"time"

	"cochat-backend/internal/mailsync"
	messengerdomain "cochat-backend/internal/messenger/domain"
	messengerdto "cochat-backend/internal/messenger/dto"
	"cochat-backend/internal/messenger/repository"
	"cochat-backend/pkg/database"
	gmailpkg "cochat-backend/pkg/gmail"
	imappkg "cochat-backend/pkg/imap"
	igpkg "cochat-backend/pkg/instagram"
	"cochat-backend/pkg/sealer"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
)

type syncCall struct {
	provider, account, marker string
}

type fakeSyncer struct {
	accounts repository.LinkedAccountRepository
	calls    []syncCall
	locked   []string
	updated  []string
}

func (f *fakeSyncer) HandleNotification(ctx context.Context, provider, providerAccountID, marker string) (*mailsync.Result, error) {
	f.calls = append(f.calls, syncCall{provider, providerAccountID, marker})
	return &mailsync.Result{Outcome: mailsync.OutcomeBaseline, Cursor: marker}, nil
}

func (f *fakeSyncer) Exclusive(ctx context.Context, provider, providerAccountID string, fn func(ctx context.Context) error) error {
	f.locked = append(f.locked, provider+":"+providerAccountID)
	return fn(ctx)
}

func (f *fakeSyncer) UpdateCredential(ctx context.Context, provider, providerAccountID string, update mailsync.CredentialUpdate) (*mailsync.Credential, error) {
	f.updated = append(f.updated, provider+":"+providerAccountID)
	acc, err := f.accounts.FindByProviderAccount(messengerdomain.Provider(provider), providerAccountID)
	if err != nil || acc == nil {
		return nil, mailsync.ErrNotLinked
	}
	fresh, err := update(ctx, mailsync.Credential{AccountID: providerAccountID, AccessToken: acc.AccessToken, RefreshToken: acc.RefreshToken})
	if err != nil {
		return nil, err
	}
	acc.AccessToken = fresh.AccessToken
	if fresh.RefreshToken != "" {
		acc.RefreshToken = fresh.RefreshToken
	}
	if err := f.accounts.Upsert(acc); err != nil {
		return nil, err
	}
	return &mailsync.Credential{AccountID: providerAccountID, AccessToken: acc.AccessToken, RefreshToken: acc.RefreshToken}, nil
}

type fakeGmail struct {
	refreshToken string
	historyID    uint64
	watchID      uint64
	watchErr     error
	validToken   string
	stopped      int
}

func (f *fakeGmail) AuthCodeURL(state string) string {
	return "https://accounts.example/auth?state=" + url.QueryEscape(state)
}

func (f *fakeGmail) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	return &oauth2.Token{AccessToken: "access-" + code, RefreshToken: f.refreshToken, Expiry: time.Now().Add(time.Hour)}, nil
}

func (f *fakeGmail) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	return &oauth2.Token{AccessToken: f.validToken}, nil
}

func (f *fakeGmail) GetProfile(ctx context.Context, accessToken string) (*gmailpkg.Profile, error) {
	if f.validToken != "" && accessToken != f.validToken {
		return nil, &googleapi.Error{Code: 401}
	}
	return &gmailpkg.Profile{EmailAddress: "me@gmail.com", HistoryID: f.historyID}, nil
}

func (f *fakeGmail) Watch(ctx context.Context, accessToken, topicName string) (uint64, time.Time, error) {
	return f.watchID, time.Now().Add(7 * 24 * time.Hour), f.watchErr
}

func (f *fakeGmail) Stop(ctx context.Context, accessToken string) error {
	f.stopped++
	return nil
}

type fakeInstagram struct{}

func (fakeInstagram) AuthCodeURL(state string) string {
	return "https://ig.example/auth?state=" + state
}

func (fakeInstagram) Exchange(ctx context.Context, code string) (*igpkg.Token, error) {
	return &igpkg.Token{AccessToken: "ig-long", UserID: "17841400000000001", Username: "shop", Expiry: time.Now().Add(60 * 24 * time.Hour)}, nil
}

type fakeMailbox struct {
	password string
}

func (f *fakeMailbox) Verify(ctx context.Context, host, username, password string) (*imappkg.MailboxState, error) {
	if password != f.password {
		return nil, imappkg.ErrAuthFailed
	}
	return &imappkg.MailboxState{UIDValidity: 3, LastUID: 41}, nil
}

type fakeHead struct{ cred mailsync.Credential }

func (f *fakeHead) Head(ctx context.Context, cred mailsync.Credential) (string, error) {
	f.cred = cred
	return "3:50", nil
}

type fixture struct {
	uc     *messengerUsecase
	repo   repository.LinkedAccountRepository
	syncer *fakeSyncer
	gmail  *fakeGmail
	head   *fakeHead
	sealer *sealer.Sealer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.NewInMemory(&messengerdomain.LinkedAccount{})
	require.NoError(t, err)

	repo := repository.NewLinkedAccountRepository(db)
	f := &fixture{
		repo:   repo,
		syncer: &fakeSyncer{accounts: repo},
		gmail:  &fakeGmail{refreshToken: "refresh-1", historyID: 500, watchID: 510},
		head:   &fakeHead{},
		sealer: sealer.New("k"),
	}
	f.uc = NewMessengerUsecase(Dependencies{
		Accounts:  f.repo,
		Syncer:    f.syncer,
		Gmail:     f.gmail,
		Instagram: fakeInstagram{},
		IMAP:      &fakeMailbox{password: "app-pw"},
		IMAPHead:  f.head,
		Sealer:    f.sealer,
	}, Config{StateSecret: "state-secret", PubSubTopic: "projects/p/topics/gmail"}).(*messengerUsecase)
	return f
}

func stateFrom(t *testing.T, authURL string) string {
	t.Helper()
	u, err := url.Parse(authURL)
	require.NoError(t, err)
	return u.Query().Get("state")
}

func TestLinkGmailWatchesAndBaselines(t *testing.T) {
	f := newFixture(t)

	authURL, err := f.uc.GmailAuthURL("user-1")
	require.NoError(t, err)

	account, err := f.uc.LinkGmail(context.Background(), "code", stateFrom(t, authURL))
	require.NoError(t, err)

	assert.Equal(t, "user-1", account.UserID)
	assert.Equal(t, "me@gmail.com", account.ProviderAccountID)
	assert.Equal(t, "refresh-1", account.RefreshToken)
	require.NotNil(t, account.WatchExpiry)
	require.NotNil(t, account.HistoryID)
	assert.Equal(t, "510", *account.HistoryID)
	assert.Equal(t, []syncCall{{"gmail", "me@gmail.com", "510"}}, f.syncer.calls)
	assert.Equal(t, []string{"gmail:me@gmail.com"}, f.syncer.locked, "account written under its sync lease")
}

func TestLinkGmailKeepsStoredRefreshToken(t *testing.T) {
	f := newFixture(t)
	authURL, _ := f.uc.GmailAuthURL("user-1")
	_, err := f.uc.LinkGmail(context.Background(), "code", stateFrom(t, authURL))
	require.NoError(t, err)

	f.gmail.refreshToken = ""
	account, err := f.uc.LinkGmail(context.Background(), "code2", stateFrom(t, authURL))
	require.NoError(t, err)
	assert.Equal(t, "refresh-1", account.RefreshToken)
	assert.Equal(t, "access-code2", account.AccessToken)
}

func TestLinkGmailRejectsBadState(t *testing.T) {
	f := newFixture(t)

	_, err := f.uc.LinkGmail(context.Background(), "code", "forged")
	assert.ErrorIs(t, err, ErrInvalidState)

	igURL, _ := f.uc.InstagramAuthURL("user-1")
	_, err = f.uc.LinkGmail(context.Background(), "code", stateFrom(t, igURL))
	assert.ErrorIs(t, err, ErrInvalidState, "state for another provider")

	authURL, _ := f.uc.GmailAuthURL("user-1")
	f.uc.now = func() time.Time { return time.Now().Add(time.Hour) }
	_, err = f.uc.LinkGmail(context.Background(), "code", stateFrom(t, authURL))
	assert.ErrorIs(t, err, ErrInvalidState, "expired state")
}

func TestLinkInstagram(t *testing.T) {
	f := newFixture(t)
	authURL, err := f.uc.InstagramAuthURL("user-1")
	require.NoError(t, err)

	account, err := f.uc.LinkInstagram(context.Background(), "code", stateFrom(t, authURL))
	require.NoError(t, err)
	assert.Equal(t, messengerdomain.ProviderInstagram, account.Provider)
	assert.Equal(t, "17841400000000001", account.ProviderAccountID)
	assert.Equal(t, "ig-long", account.RefreshToken)
	assert.Empty(t, f.syncer.calls)
	assert.Equal(t, []string{"instagram:17841400000000001"}, f.syncer.locked)
}

func TestLinkIMAP(t *testing.T) {
	f := newFixture(t)

	_, err := f.uc.LinkIMAP(context.Background(), "user-1", &messengerdto.LinkIMAPRequest{Host: "imap.mail.example", Username: "Me@Mail.example", Password: "wrong"})
	assert.ErrorIs(t, err, ErrMailboxAuthFailed)

	account, err := f.uc.LinkIMAP(context.Background(), "user-1", &messengerdto.LinkIMAPRequest{Host: "imap.mail.example", Username: "Me@Mail.example", Password: "app-pw"})
	require.NoError(t, err)
	assert.Equal(t, "me@mail.example", account.ProviderAccountID)
	assert.NotEqual(t, "app-pw", account.AccessToken)

	plain, err := f.sealer.Open(account.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "app-pw", plain)
	assert.Equal(t, []syncCall{{"imap", "me@mail.example", "3:41"}}, f.syncer.calls)
}

func TestResync(t *testing.T) {
	f := newFixture(t)
	authURL, _ := f.uc.GmailAuthURL("user-1")
	gmailAcc, err := f.uc.LinkGmail(context.Background(), "code", stateFrom(t, authURL))
	require.NoError(t, err)
	imapAcc, err := f.uc.LinkIMAP(context.Background(), "user-1", &messengerdto.LinkIMAPRequest{Host: "h", Username: "u@h", Password: "app-pw"})
	require.NoError(t, err)
	f.syncer.calls = nil

	f.gmail.historyID = 900
	_, err = f.uc.Resync(context.Background(), "user-1", gmailAcc.ID)
	require.NoError(t, err)

	f.gmail.validToken = "fresh"
	f.gmail.historyID = 950
	_, err = f.uc.Resync(context.Background(), "user-1", gmailAcc.ID)
	require.NoError(t, err, "expired access token is refreshed to read the head")
	assert.Equal(t, []string{"gmail:me@gmail.com"}, f.syncer.updated)
	stored, err := f.repo.FindByID(gmailAcc.ID)
	require.NoError(t, err)
	assert.Equal(t, "fresh", stored.AccessToken, "refreshed token is kept for the pass")
	assert.Equal(t, "refresh-1", stored.RefreshToken)

	_, err = f.uc.Resync(context.Background(), "user-1", imapAcc.ID)
	require.NoError(t, err)
	assert.Equal(t, "h", f.head.cred.Host)

	assert.Equal(t, []syncCall{
		{"gmail", "me@gmail.com", "900"},
		{"gmail", "me@gmail.com", "950"},
		{"imap", "u@h", "3:50"},
	}, f.syncer.calls)

	_, err = f.uc.Resync(context.Background(), "user-2", gmailAcc.ID)
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestUnlink(t *testing.T) {
	f := newFixture(t)
	authURL, _ := f.uc.GmailAuthURL("user-1")
	account, err := f.uc.LinkGmail(context.Background(), "code", stateFrom(t, authURL))
	require.NoError(t, err)

	assert.ErrorIs(t, f.uc.Unlink(context.Background(), "user-2", account.ID), ErrAccountNotFound)
	require.NoError(t, f.uc.Unlink(context.Background(), "user-1", account.ID))
	assert.Equal(t, 1, f.gmail.stopped)

	list, err := f.uc.List("user-1")
	require.NoError(t, err)
	assert.Empty(t, list)
}
