// Package imap reads INBOX deltas from plain IMAP servers.
package imap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
)

const inbox = "INBOX"

var ErrAuthFailed = errors.New("imap: authentication failed")

type Message struct {
	UID     uint32
	Flags   []string
	From    string
	To      string
	Subject string
	Date    time.Time
	Raw     []byte
}

// MailboxState is the INBOX position used as a sync marker.
type MailboxState struct {
	UIDValidity uint32
	LastUID     uint32
}

type Service struct {
	dialTimeout time.Duration
}

func NewService() *Service {
	return &Service{dialTimeout: 15 * time.Second}
}

func (s *Service) connect(ctx context.Context, host, username, password string) (*client.Client, error) {
	addr := host
	if _, _, err := net.SplitHostPort(host); err != nil {
		addr = net.JoinHostPort(host, "993")
	}

	c, err := client.DialWithDialerTLS(&net.Dialer{Timeout: s.dialTimeout}, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("imap dial %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		c.Timeout = time.Until(deadline)
	}
	if err := c.Login(username, password); err != nil {
		_ = c.Logout()
		return nil, fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}
	return c, nil
}

// Verify checks the credentials and returns the current INBOX state.
func (s *Service) Verify(ctx context.Context, host, username, password string) (*MailboxState, error) {
	c, err := s.connect(ctx, host, username, password)
	if err != nil {
		return nil, err
	}
	defer c.Logout()

	mbox, err := c.Select(inbox, true)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", inbox, err)
	}
	return stateOf(mbox), nil
}

// FetchSince returns INBOX messages with a UID above lastUID, in UID order,
// together with the mailbox state they were read from.
func (s *Service) FetchSince(ctx context.Context, host, username, password string, lastUID uint32) (*MailboxState, []Message, error) {
	c, err := s.connect(ctx, host, username, password)
	if err != nil {
		return nil, nil, err
	}
	defer c.Logout()

	mbox, err := c.Select(inbox, true)
	if err != nil {
		return nil, nil, fmt.Errorf("select %s: %w", inbox, err)
	}
	state := stateOf(mbox)
	if mbox.UidNext != 0 && lastUID+1 >= mbox.UidNext {
		return state, nil, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddRange(lastUID+1, 0)
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, imap.FetchFlags, imap.FetchEnvelope, imap.FetchInternalDate, section.FetchItem()}

	ch := make(chan *imap.Message, 16)
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqset, items, ch)
	}()

	out, readErr := collect(ch, section, lastUID, state)
	if err := <-done; err != nil {
		return nil, nil, fmt.Errorf("uid fetch: %w", err)
	}
	if readErr != nil {
		return nil, nil, readErr
	}

	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return state, out, nil
}

// collect drains ch completely, even after a body fails to read, so the
// fetch goroutine finishes before the connection is logged out. It returns
// the first read error.
func collect(ch <-chan *imap.Message, section *imap.BodySectionName, lastUID uint32, state *MailboxState) ([]Message, error) {
	var (
		out      []Message
		firstErr error
	)
	for m := range ch {
		// "n:*" always matches the last message, even below n
		if firstErr != nil || m.Uid <= lastUID {
			continue
		}
		msg := Message{UID: m.Uid, Flags: m.Flags, Date: m.InternalDate}
		if env := m.Envelope; env != nil {
			msg.Subject = env.Subject
			msg.From = firstAddress(env.From)
			msg.To = firstAddress(env.To)
			if msg.Date.IsZero() {
				msg.Date = env.Date
			}
		}
		if body := m.GetBody(section); body != nil {
			raw, err := io.ReadAll(body)
			if err != nil {
				firstErr = fmt.Errorf("read message %d: %w", m.Uid, err)
				continue
			}
			msg.Raw = raw
		}
		out = append(out, msg)
		if m.Uid > state.LastUID {
			state.LastUID = m.Uid
		}
	}
	return out, firstErr
}

func stateOf(mbox *imap.MailboxStatus) *MailboxState {
	st := &MailboxState{UIDValidity: mbox.UidValidity}
	if mbox.UidNext > 0 {
		st.LastUID = mbox.UidNext - 1
	}
	return st
}

func firstAddress(list []*imap.Address) string {
	for _, a := range list {
		if a == nil || a.MailboxName == "" {
			continue
		}
		if a.HostName == "" {
			return strings.ToLower(a.MailboxName)
		}
		return strings.ToLower(a.MailboxName + "@" + a.HostName)
	}
	return ""
}
