package usecase

import (
	"context"
	"errors"
	"time"

	"cochat-backend/internal/mailsync"
	messengerdomain "cochat-backend/internal/messenger/domain"
	messengerdto "cochat-backend/internal/messenger/dto"
	gmailpkg "cochat-backend/pkg/gmail"
	imappkg "cochat-backend/pkg/imap"
	igpkg "cochat-backend/pkg/instagram"

	"golang.org/x/oauth2"
)

var (
	ErrInvalidState      = errors.New("invalid or expired oauth state")
	ErrAccountNotFound   = errors.New("linked account not found")
	ErrProviderDisabled  = errors.New("provider is not configured")
	ErrResyncUnsupported = errors.New("provider pushes message content and cannot be resynced")
	ErrMailboxAuthFailed = errors.New("mailbox rejected the credentials")
	ErrNoRefreshToken    = errors.New("provider did not issue a refresh token")
)

type MessengerUsecase interface {
	GmailAuthURL(userID string) (string, error)
	LinkGmail(ctx context.Context, code, state string) (*messengerdomain.LinkedAccount, error)
	InstagramAuthURL(userID string) (string, error)
	LinkInstagram(ctx context.Context, code, state string) (*messengerdomain.LinkedAccount, error)
	LinkIMAP(ctx context.Context, userID string, req *messengerdto.LinkIMAPRequest) (*messengerdomain.LinkedAccount, error)

	List(userID string) ([]messengerdomain.LinkedAccount, error)
	Unlink(ctx context.Context, userID, id string) error
	// Resync runs a sync pass for one account up to the mailbox's current head.
	Resync(ctx context.Context, userID, id string) (*mailsync.Result, error)
}

// Syncer runs sync passes and guards credential changes with the same
// per-account lease; *mailsync.Cursor implements it.
type Syncer interface {
	HandleNotification(ctx context.Context, provider, providerAccountID, marker string) (*mailsync.Result, error)
	Exclusive(ctx context.Context, provider, providerAccountID string, fn func(ctx context.Context) error) error
	UpdateCredential(ctx context.Context, provider, providerAccountID string, update mailsync.CredentialUpdate) (*mailsync.Credential, error)
}

type GmailAuthorizer interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
	GetProfile(ctx context.Context, accessToken string) (*gmailpkg.Profile, error)
	Watch(ctx context.Context, accessToken, topicName string) (uint64, time.Time, error)
	Stop(ctx context.Context, accessToken string) error
}

type InstagramAuthorizer interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*igpkg.Token, error)
}

type MailboxVerifier interface {
	Verify(ctx context.Context, host, username, password string) (*imappkg.MailboxState, error)
}

// MailboxHead reads the current marker of a linked IMAP mailbox.
type MailboxHead interface {
	Head(ctx context.Context, cred mailsync.Credential) (string, error)
}

var (
	_ Syncer              = (*mailsync.Cursor)(nil)
	_ GmailAuthorizer     = (*gmailpkg.Service)(nil)
	_ InstagramAuthorizer = (*igpkg.Service)(nil)
	_ MailboxVerifier     = (*imappkg.Service)(nil)
)
