package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"cochat-backend/internal/mailsync"
	messengerdomain "cochat-backend/internal/messenger/domain"
	messengerdto "cochat-backend/internal/messenger/dto"
	"cochat-backend/internal/messenger/repository"
	imapprovider "cochat-backend/internal/providers/imap"
	gmailpkg "cochat-backend/pkg/gmail"
	imappkg "cochat-backend/pkg/imap"
	"cochat-backend/pkg/sealer"
)

// Config holds the settings the linking flows need.
type Config struct {
	StateSecret string
	PubSubTopic string
	Timeout     time.Duration
}

type Dependencies struct {
	Accounts  repository.LinkedAccountRepository
	Syncer    Syncer
	Gmail     GmailAuthorizer
	Instagram InstagramAuthorizer
	IMAP      MailboxVerifier
	IMAPHead  MailboxHead
	Sealer    *sealer.Sealer
}

type messengerUsecase struct {
	Dependencies
	stateKey    []byte
	pubSubTopic string
	timeout     time.Duration
	now         func() time.Time
}

func NewMessengerUsecase(deps Dependencies, cfg Config) MessengerUsecase {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &messengerUsecase{
		Dependencies: deps,
		stateKey:     []byte(cfg.StateSecret),
		pubSubTopic:  cfg.PubSubTopic,
		timeout:      timeout,
		now:          time.Now,
	}
}

func (u *messengerUsecase) GmailAuthURL(userID string) (string, error) {
	if u.Gmail == nil {
		return "", ErrProviderDisabled
	}
	state, err := u.signState(userID, messengerdomain.ProviderGmail)
	if err != nil {
		return "", err
	}
	return u.Gmail.AuthCodeURL(state), nil
}

// LinkGmail completes the OAuth round trip, registers a push watch and sets
// the sync baseline at the mailbox's current history ID.
func (u *messengerUsecase) LinkGmail(ctx context.Context, code, state string) (*messengerdomain.LinkedAccount, error) {
	if u.Gmail == nil {
		return nil, ErrProviderDisabled
	}
	userID, err := u.parseState(state, messengerdomain.ProviderGmail)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	token, err := u.Gmail.Exchange(ctx, code)
	if err != nil {
		return nil, err
	}
	profile, err := u.Gmail.GetProfile(ctx, token.AccessToken)
	if err != nil {
		return nil, err
	}

	account := &messengerdomain.LinkedAccount{
		UserID:            userID,
		Provider:          messengerdomain.ProviderGmail,
		ProviderAccountID: profile.EmailAddress,
		AccessToken:       token.AccessToken,
		RefreshToken:      token.RefreshToken,
	}
	if !token.Expiry.IsZero() {
		expiry := token.Expiry
		account.TokenExpiry = &expiry
	}
	err = u.save(ctx, account, func() error {
		if account.RefreshToken == "" {
			// Google only returns a refresh token on first consent; keep the stored one.
			if existing, _ := u.Accounts.FindByProviderAccount(messengerdomain.ProviderGmail, profile.EmailAddress); existing != nil && existing.UserID == userID {
				account.RefreshToken = existing.RefreshToken
			}
		}
		if account.RefreshToken == "" {
			return ErrNoRefreshToken
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	baseline := profile.HistoryID
	if u.pubSubTopic != "" {
		historyID, expiration, err := u.Gmail.Watch(ctx, token.AccessToken, u.pubSubTopic)
		if err != nil {
			log.Printf("[Messenger] gmail watch for %s failed: %v", profile.EmailAddress, err)
		} else {
			baseline = historyID
			if err := u.Accounts.UpdateWatchExpiry(account.ID, expiration); err != nil {
				log.Printf("[Messenger] failed to store watch expiry for %s: %v", account.ID, err)
			}
			account.WatchExpiry = &expiration
		}
	}

	u.baseline(ctx, account, strconv.FormatUint(baseline, 10))
	log.Printf("[Messenger] linked gmail %s for user %s", profile.EmailAddress, userID)
	return account, nil
}

func (u *messengerUsecase) InstagramAuthURL(userID string) (string, error) {
	if u.Instagram == nil {
		return "", ErrProviderDisabled
	}
	state, err := u.signState(userID, messengerdomain.ProviderInstagram)
	if err != nil {
		return "", err
	}
	return u.Instagram.AuthCodeURL(state), nil
}

func (u *messengerUsecase) LinkInstagram(ctx context.Context, code, state string) (*messengerdomain.LinkedAccount, error) {
	if u.Instagram == nil {
		return nil, ErrProviderDisabled
	}
	userID, err := u.parseState(state, messengerdomain.ProviderInstagram)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	token, err := u.Instagram.Exchange(ctx, code)
	if err != nil {
		return nil, err
	}
	expiry := token.Expiry
	account := &messengerdomain.LinkedAccount{
		UserID:            userID,
		Provider:          messengerdomain.ProviderInstagram,
		ProviderAccountID: token.UserID,
		AccessToken:       token.AccessToken,
		RefreshToken:      token.AccessToken,
		TokenExpiry:       &expiry,
	}
	if err := u.save(ctx, account, nil); err != nil {
		return nil, err
	}
	log.Printf("[Messenger] linked instagram %s (%s) for user %s", token.UserID, token.Username, userID)
	return account, nil
}

// LinkIMAP verifies the login before storing the password sealed.
func (u *messengerUsecase) LinkIMAP(ctx context.Context, userID string, req *messengerdto.LinkIMAPRequest) (*messengerdomain.LinkedAccount, error) {
	if u.IMAP == nil || u.Sealer == nil {
		return nil, ErrProviderDisabled
	}

	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	username := strings.ToLower(strings.TrimSpace(req.Username))
	state, err := u.IMAP.Verify(ctx, req.Host, username, req.Password)
	if err != nil {
		if errors.Is(err, imappkg.ErrAuthFailed) {
			return nil, ErrMailboxAuthFailed
		}
		return nil, err
	}

	sealed, err := u.Sealer.Seal(req.Password)
	if err != nil {
		return nil, err
	}
	account := &messengerdomain.LinkedAccount{
		UserID:            userID,
		Provider:          messengerdomain.ProviderIMAP,
		ProviderAccountID: username,
		AccessToken:       sealed,
		IMAPHost:          req.Host,
	}
	if err := u.save(ctx, account, nil); err != nil {
		return nil, err
	}

	u.baseline(ctx, account, imapprovider.FormatMarker(state))
	log.Printf("[Messenger] linked imap %s@%s for user %s", username, req.Host, userID)
	return account, nil
}

// save upserts a linked account under its sync lease, so a relink never
// interleaves with a pass that is refreshing the same credential. prepare runs
// inside the lease before the write.
func (u *messengerUsecase) save(ctx context.Context, account *messengerdomain.LinkedAccount, prepare func() error) error {
	write := func(ctx context.Context) error {
		if prepare != nil {
			if err := prepare(); err != nil {
				return err
			}
		}
		if err := u.Accounts.Upsert(account); err != nil {
			return fmt.Errorf("failed to save linked account: %w", err)
		}
		return nil
	}
	if u.Syncer == nil {
		return write(ctx)
	}
	return u.Syncer.Exclusive(ctx, string(account.Provider), account.ProviderAccountID, write)
}

// baseline runs the first pass for a new link. With no cursor stored the
// pass only records the marker; a relinked account syncs up to it instead.
func (u *messengerUsecase) baseline(ctx context.Context, account *messengerdomain.LinkedAccount, marker string) {
	if u.Syncer == nil {
		return
	}
	result, err := u.Syncer.HandleNotification(ctx, string(account.Provider), account.ProviderAccountID, marker)
	if err != nil {
		log.Printf("[Messenger] initial sync for %s failed: %v", account.ID, err)
		return
	}
	if result.Cursor != "" {
		cursor := result.Cursor
		account.HistoryID = &cursor
	}
}

func (u *messengerUsecase) List(userID string) ([]messengerdomain.LinkedAccount, error) {
	return u.Accounts.FindByUserID(userID)
}

func (u *messengerUsecase) Unlink(ctx context.Context, userID, id string) error {
	account, err := u.owned(userID, id)
	if err != nil {
		return err
	}

	if account.Provider == messengerdomain.ProviderGmail && u.Gmail != nil && account.WatchExpiry != nil {
		sctx, cancel := context.WithTimeout(ctx, u.timeout)
		if err := u.Gmail.Stop(sctx, account.AccessToken); err != nil {
			log.Printf("[Messenger] failed to stop gmail watch for %s: %v", account.ID, err)
		}
		cancel()
	}

	deleted, err := u.Accounts.Delete(userID, id)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrAccountNotFound
	}
	return nil
}

func (u *messengerUsecase) Resync(ctx context.Context, userID, id string) (*mailsync.Result, error) {
	account, err := u.owned(userID, id)
	if err != nil {
		return nil, err
	}
	if u.Syncer == nil {
		return nil, ErrProviderDisabled
	}

	marker, err := u.head(ctx, account)
	if err != nil {
		return nil, err
	}
	return u.Syncer.HandleNotification(ctx, string(account.Provider), account.ProviderAccountID, marker)
}

// head reads the provider's current position for the account.
func (u *messengerUsecase) head(ctx context.Context, account *messengerdomain.LinkedAccount) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	switch account.Provider {
	case messengerdomain.ProviderGmail:
		if u.Gmail == nil {
			return "", ErrProviderDisabled
		}
		profile, err := u.Gmail.GetProfile(ctx, account.AccessToken)
		if err != nil && gmailpkg.IsUnauthorized(err) && account.RefreshToken != "" {
			cred, rerr := u.refreshGmail(ctx, account)
			if rerr != nil {
				return "", rerr
			}
			profile, err = u.Gmail.GetProfile(ctx, cred.AccessToken)
		}
		if err != nil {
			return "", err
		}
		return strconv.FormatUint(profile.HistoryID, 10), nil
	case messengerdomain.ProviderIMAP:
		if u.IMAPHead == nil {
			return "", ErrProviderDisabled
		}
		return u.IMAPHead.Head(ctx, mailsync.Credential{
			AccountID:   account.ProviderAccountID,
			AccessToken: account.AccessToken,
			Host:        account.IMAPHost,
		})
	default:
		return "", ErrResyncUnsupported
	}
}

// refreshGmail refreshes and stores the account's token under its sync lease
// so the pass that follows reuses it.
func (u *messengerUsecase) refreshGmail(ctx context.Context, account *messengerdomain.LinkedAccount) (*mailsync.Credential, error) {
	return u.Syncer.UpdateCredential(ctx, string(account.Provider), account.ProviderAccountID, func(ctx context.Context, current mailsync.Credential) (*mailsync.Credential, error) {
		token, err := u.Gmail.Refresh(ctx, current.RefreshToken)
		if err != nil {
			return nil, err
		}
		fresh := &mailsync.Credential{AccessToken: token.AccessToken, RefreshToken: token.RefreshToken}
		if !token.Expiry.IsZero() {
			expiry := token.Expiry
			fresh.Expiry = &expiry
		}
		return fresh, nil
	})
}

func (u *messengerUsecase) owned(userID, id string) (*messengerdomain.LinkedAccount, error) {
	account, err := u.Accounts.FindByID(id)
	if err != nil {
		return nil, err
	}
	if account == nil || account.UserID != userID {
		return nil, ErrAccountNotFound
	}
	return account, nil
}
