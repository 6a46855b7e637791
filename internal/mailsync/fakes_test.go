package mailsync

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	msgdomain "cochat-backend/internal/message/domain"
	messengerdomain "cochat-backend/internal/messenger/domain"
	"cochat-backend/pkg/ai"
)

type fakeStore struct {
	mu        sync.Mutex
	accounts  map[string]*messengerdomain.LinkedAccount
	messages  map[string]*msgdomain.Message
	pref      *Preference
	commitErr error
	commits   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		accounts: make(map[string]*messengerdomain.LinkedAccount),
		messages: make(map[string]*msgdomain.Message),
	}
}

func (s *fakeStore) addAccount(acc *messengerdomain.LinkedAccount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[leaseKey(string(acc.Provider), acc.ProviderAccountID)] = acc
}

func (s *fakeStore) account(provider, id string) *messengerdomain.LinkedAccount {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc := *s.accounts[leaseKey(provider, id)]
	return &acc
}

func (s *fakeStore) storeMessage(provider, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[provider+":"+id] = &msgdomain.Message{Provider: provider, ProviderMessageID: id}
}

func (s *fakeStore) messageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

func (s *fakeStore) message(provider, id string) *msgdomain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messages[provider+":"+id]
}

func (s *fakeStore) FindAccount(ctx context.Context, provider, providerAccountID string) (*messengerdomain.LinkedAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[leaseKey(provider, providerAccountID)]
	if !ok {
		return nil, nil
	}
	cp := *acc
	return &cp, nil
}

func (s *fakeStore) SetBaseline(ctx context.Context, accountID, marker string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, acc := range s.accounts {
		if acc.ID == accountID && acc.HistoryID == nil {
			m := marker
			acc.HistoryID = &m
		}
	}
	return nil
}

func (s *fakeStore) ExistingMessageIDs(ctx context.Context, provider string, ids []string) (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	found := map[string]bool{}
	for _, id := range ids {
		if _, ok := s.messages[provider+":"+id]; ok {
			found[id] = true
		}
	}
	return found, nil
}

func (s *fakeStore) Preference(ctx context.Context, userID string) (*Preference, error) {
	if s.pref == nil {
		return &Preference{}, nil
	}
	return s.pref, nil
}

func (s *fakeStore) Commit(ctx context.Context, c *Commit) ([]*msgdomain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.commitErr != nil {
		return nil, s.commitErr
	}
	s.commits++

	var inserted []*msgdomain.Message
	for _, m := range c.Messages {
		key := m.Provider + ":" + m.ProviderMessageID
		if _, ok := s.messages[key]; ok {
			continue
		}
		s.messages[key] = m
		inserted = append(inserted, m)
	}
	for _, acc := range s.accounts {
		if acc.ID != c.AccountID {
			continue
		}
		if c.Cursor != nil {
			v := *c.Cursor
			acc.HistoryID = &v
		}
		if c.Credential != nil {
			acc.AccessToken = c.Credential.AccessToken
			if c.Credential.RefreshToken != "" {
				acc.RefreshToken = c.Credential.RefreshToken
			}
		}
	}
	return inserted, nil
}

type fakeProvider struct {
	mu           sync.Mutex
	records      []IncomingRecord
	fetchErr     error
	validToken   string
	refreshed    *Credential
	refreshErr   error
	fetchCalls   int
	refreshCalls int
	since        []string
	delay        time.Duration

	active    int32
	maxActive int32
}

func (p *fakeProvider) FetchDelta(ctx context.Context, cred Credential, since string) ([]IncomingRecord, bool, error) {
	n := atomic.AddInt32(&p.active, 1)
	defer atomic.AddInt32(&p.active, -1)
	for {
		m := atomic.LoadInt32(&p.maxActive)
		if n <= m || atomic.CompareAndSwapInt32(&p.maxActive, m, n) {
			break
		}
	}
	if p.delay > 0 {
		time.Sleep(p.delay)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.fetchCalls++
	p.since = append(p.since, since)
	if p.fetchErr != nil {
		return nil, false, p.fetchErr
	}
	if p.validToken != "" && cred.AccessToken != p.validToken {
		return nil, true, nil
	}
	out := make([]IncomingRecord, len(p.records))
	copy(out, p.records)
	return out, false, nil
}

func (p *fakeProvider) RefreshCredential(ctx context.Context, refreshToken string) (*Credential, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refreshCalls++
	if p.refreshErr != nil {
		return nil, p.refreshErr
	}
	return p.refreshed, nil
}

// orderedProvider compares numeric markers.
type orderedProvider struct {
	*fakeProvider
}

func (orderedProvider) MarkerBefore(a, b string) bool {
	x, errA := strconv.ParseUint(a, 10, 64)
	y, errB := strconv.ParseUint(b, 10, 64)
	return errA == nil && errB == nil && x < y
}

type fakeAnalyzer struct {
	mu       sync.Mutex
	results  map[string]*ai.Analysis
	err      error
	block    bool
	requests []*ai.AnalysisRequest
}

func (a *fakeAnalyzer) Analyze(ctx context.Context, req *ai.AnalysisRequest) (*ai.Analysis, error) {
	a.mu.Lock()
	a.requests = append(a.requests, req)
	block := a.block
	a.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if a.err != nil {
		return nil, a.err
	}
	if r, ok := a.results[req.Content]; ok {
		return r, nil
	}
	return &ai.Analysis{Recommended: true, Category: "office"}, nil
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []*msgdomain.Message
	err      error
}

func (n *fakeNotifier) Notify(ctx context.Context, msg *msgdomain.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, msg)
	return n.err
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.messages)
}

var errBoom = errors.New("boom")

func strPtr(s string) *string { return &s }
