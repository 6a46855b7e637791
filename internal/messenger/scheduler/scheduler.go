package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"cochat-backend/internal/mailsync"
	messengerdomain "cochat-backend/internal/messenger/domain"
	"cochat-backend/internal/messenger/repository"

	"golang.org/x/oauth2"
)

// loop runs fn now and then every interval until stop is closed.
func loop(name string, interval time.Duration, stop <-chan struct{}, done *sync.WaitGroup, fn func(ctx context.Context)) {
	done.Add(1)
	go func() {
		defer done.Done()
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			<-stop
			cancel()
		}()

		fn(ctx)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				fn(ctx)
			case <-stop:
				log.Printf("[%s] Scheduler stopped", name)
				return
			}
		}
	}()
}

// WatchAPI is the part of the Gmail service the renewer needs.
type WatchAPI interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
	Watch(ctx context.Context, accessToken, topicName string) (uint64, time.Time, error)
}

// CredentialUpdater changes an account's credential under its sync lease;
// *mailsync.Cursor implements it.
type CredentialUpdater interface {
	UpdateCredential(ctx context.Context, provider, providerAccountID string, update mailsync.CredentialUpdate) (*mailsync.Credential, error)
}

// Renewer keeps provider subscriptions alive: Gmail watches lapse after seven
// days and long-lived Instagram tokens after sixty.
type Renewer struct {
	accounts       repository.LinkedAccountRepository
	credentials    CredentialUpdater
	gmail          WatchAPI
	instagram      mailsync.ProviderClient
	topic          string
	interval       time.Duration
	watchMargin    time.Duration
	tokenMargin    time.Duration
	requestTimeout time.Duration
	now            func() time.Time
	stopChan       chan struct{}
	wg             sync.WaitGroup
}

func NewRenewer(accounts repository.LinkedAccountRepository, credentials CredentialUpdater, gmail WatchAPI, instagram mailsync.ProviderClient, topic string, interval time.Duration) *Renewer {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &Renewer{
		accounts:       accounts,
		credentials:    credentials,
		gmail:          gmail,
		instagram:      instagram,
		topic:          topic,
		interval:       interval,
		watchMargin:    2 * 24 * time.Hour,
		tokenMargin:    10 * 24 * time.Hour,
		requestTimeout: 30 * time.Second,
		now:            time.Now,
		stopChan:       make(chan struct{}),
	}
}

func (r *Renewer) Start() {
	log.Printf("[Renewer] Starting subscription renewer (interval: %s)", r.interval)
	loop("Renewer", r.interval, r.stopChan, &r.wg, r.RenewAll)
}

func (r *Renewer) Stop() {
	close(r.stopChan)
	r.wg.Wait()
}

// RenewAll renews every watch and token that expires within its margin.
func (r *Renewer) RenewAll(ctx context.Context) {
	if r.gmail != nil && r.topic != "" {
		accounts, err := r.accounts.FindByProvider(messengerdomain.ProviderGmail)
		if err != nil {
			log.Printf("[Renewer] Error listing gmail accounts: %v", err)
		}
		for i := range accounts {
			if ctx.Err() != nil {
				return
			}
			r.renewWatch(ctx, &accounts[i])
		}
	}

	if r.instagram != nil {
		accounts, err := r.accounts.FindByProvider(messengerdomain.ProviderInstagram)
		if err != nil {
			log.Printf("[Renewer] Error listing instagram accounts: %v", err)
		}
		for i := range accounts {
			if ctx.Err() != nil {
				return
			}
			r.renewToken(ctx, &accounts[i])
		}
	}
}

func (r *Renewer) renewWatch(ctx context.Context, acc *messengerdomain.LinkedAccount) {
	if acc.WatchExpiry != nil && acc.WatchExpiry.Sub(r.now()) > r.watchMargin {
		return
	}

	cred, err := r.credentials.UpdateCredential(ctx, string(acc.Provider), acc.ProviderAccountID, func(ctx context.Context, current mailsync.Credential) (*mailsync.Credential, error) {
		token, err := r.gmail.Refresh(ctx, current.RefreshToken)
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
	if err != nil {
		log.Printf("[Renewer] Cannot refresh credentials of %s, watch not renewed: %v", acc.ID, err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, r.requestTimeout)
	defer cancel()
	_, expiration, err := r.gmail.Watch(ctx, cred.AccessToken, r.topic)
	if err != nil {
		log.Printf("[Renewer] Error renewing watch of %s: %v", acc.ID, err)
		return
	}
	if err := r.accounts.UpdateWatchExpiry(acc.ID, expiration); err != nil {
		log.Printf("[Renewer] Error saving watch expiry of %s: %v", acc.ID, err)
		return
	}
	log.Printf("[Renewer] Renewed gmail watch of %s until %s", acc.ID, expiration.Format(time.RFC3339))
}

func (r *Renewer) renewToken(ctx context.Context, acc *messengerdomain.LinkedAccount) {
	if acc.TokenExpiry != nil && acc.TokenExpiry.Sub(r.now()) > r.tokenMargin {
		return
	}

	_, err := r.credentials.UpdateCredential(ctx, string(acc.Provider), acc.ProviderAccountID, func(ctx context.Context, current mailsync.Credential) (*mailsync.Credential, error) {
		return r.instagram.RefreshCredential(ctx, current.RefreshToken)
	})
	if err != nil {
		log.Printf("[Renewer] Error refreshing instagram token of %s: %v", acc.ID, err)
		return
	}
	log.Printf("[Renewer] Refreshed instagram token of %s", acc.ID)
}

// Syncer runs sync passes; *mailsync.Cursor implements it.
type Syncer interface {
	HandleNotification(ctx context.Context, provider, providerAccountID, marker string) (*mailsync.Result, error)
}

type MailboxHead interface {
	Head(ctx context.Context, cred mailsync.Credential) (string, error)
}

// IMAPPoller stands in for push notifications on IMAP: each tick it reads
// every linked mailbox's head and runs a pass up to it.
type IMAPPoller struct {
	accounts       repository.LinkedAccountRepository
	head           MailboxHead
	syncer         Syncer
	interval       time.Duration
	requestTimeout time.Duration
	stopChan       chan struct{}
	wg             sync.WaitGroup
}

func NewIMAPPoller(accounts repository.LinkedAccountRepository, head MailboxHead, syncer Syncer, interval time.Duration) *IMAPPoller {
	if interval <= 0 {
		interval = 2 * time.Minute
	}
	return &IMAPPoller{
		accounts:       accounts,
		head:           head,
		syncer:         syncer,
		interval:       interval,
		requestTimeout: 30 * time.Second,
		stopChan:       make(chan struct{}),
	}
}

func (p *IMAPPoller) Start() {
	log.Printf("[IMAP] Starting mailbox poller (interval: %s)", p.interval)
	loop("IMAP", p.interval, p.stopChan, &p.wg, p.PollAll)
}

func (p *IMAPPoller) Stop() {
	close(p.stopChan)
	p.wg.Wait()
}

func (p *IMAPPoller) PollAll(ctx context.Context) {
	accounts, err := p.accounts.FindByProvider(messengerdomain.ProviderIMAP)
	if err != nil {
		log.Printf("[IMAP] Error listing accounts: %v", err)
		return
	}
	for _, acc := range accounts {
		if ctx.Err() != nil {
			return
		}
		p.poll(ctx, acc)
	}
}

func (p *IMAPPoller) poll(ctx context.Context, acc messengerdomain.LinkedAccount) {
	hctx, cancel := context.WithTimeout(ctx, p.requestTimeout)
	marker, err := p.head.Head(hctx, mailsync.Credential{
		AccountID:   acc.ProviderAccountID,
		AccessToken: acc.AccessToken,
		Host:        acc.IMAPHost,
	})
	cancel()
	if err != nil {
		log.Printf("[IMAP] Error reading head of %s: %v", acc.ID, err)
		return
	}
	if marker == acc.Cursor() {
		return
	}

	result, err := p.syncer.HandleNotification(ctx, string(acc.Provider), acc.ProviderAccountID, marker)
	if err != nil {
		log.Printf("[IMAP] Sync of %s failed: %v", acc.ID, err)
		return
	}
	if result.Accepted > 0 {
		log.Printf("[IMAP] %s: %d new messages", acc.ID, result.Accepted)
	}
}
