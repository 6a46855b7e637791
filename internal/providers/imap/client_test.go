package imap

import (
	"context"
	"testing"
	"time"

	"cochat-backend/internal/mailsync"
	imappkg "cochat-backend/pkg/imap"
	"cochat-backend/pkg/sealer"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMailbox struct {
	state    *imappkg.MailboxState
	messages []imappkg.Message
	err      error
	lastUID  uint32
	password string
}

func (f *fakeMailbox) Verify(ctx context.Context, host, username, password string) (*imappkg.MailboxState, error) {
	f.password = password
	return f.state, f.err
}

func (f *fakeMailbox) FetchSince(ctx context.Context, host, username, password string, lastUID uint32) (*imappkg.MailboxState, []imappkg.Message, error) {
	f.password = password
	f.lastUID = lastUID
	return f.state, f.messages, f.err
}

func newClient(t *testing.T, mb *fakeMailbox) (*Client, mailsync.Credential) {
	t.Helper()
	s := sealer.New("key")
	sealed, err := s.Seal("app-password")
	require.NoError(t, err)
	return NewClient(mb, s), mailsync.Credential{AccountID: "me@mail.example", AccessToken: sealed, Host: "imap.mail.example"}
}

func TestMarkers(t *testing.T) {
	state, err := ParseMarker("77:120")
	require.NoError(t, err)
	assert.Equal(t, uint32(77), state.UIDValidity)
	assert.Equal(t, uint32(120), state.LastUID)
	assert.Equal(t, "77:120", FormatMarker(state))

	for _, bad := range []string{"", "77", "x:1", "1:y", "1:99999999999"} {
		_, err := ParseMarker(bad)
		assert.Error(t, err, bad)
	}

	c := &Client{}
	assert.True(t, c.MarkerBefore("7:1", "7:2"))
	assert.False(t, c.MarkerBefore("7:3", "7:2"))
	assert.False(t, c.MarkerBefore("6:1", "7:2"))
}

func TestFetchDelta(t *testing.T) {
	raw := "From: a@example.com\r\nSubject: Lunch\r\nContent-Type: text/plain\r\n\r\nnoon?"
	mb := &fakeMailbox{
		state: &imappkg.MailboxState{UIDValidity: 7, LastUID: 12},
		messages: []imappkg.Message{
			{UID: 11, From: "a@example.com", Subject: "Lunch", Date: time.Unix(1700000000, 0), Raw: []byte(raw)},
			{UID: 12, Flags: []string{`\Draft`}},
		},
	}
	client, cred := newClient(t, mb)

	records, expired, err := client.FetchDelta(context.Background(), cred, "7:10")
	require.NoError(t, err)
	assert.False(t, expired)
	assert.Equal(t, uint32(10), mb.lastUID)
	assert.Equal(t, "app-password", mb.password)
	require.Len(t, records, 2)

	assert.Equal(t, "me@mail.example/7/11", records[0].ProviderMessageID)
	assert.Equal(t, "noon?", records[0].Body)
	assert.Equal(t, "me@mail.example", records[0].Recipient)
	require.NotNil(t, records[0].Subject)
	assert.Equal(t, "Lunch", *records[0].Subject)
	assert.Equal(t, []string{"INBOX"}, records[0].Labels)

	assert.Contains(t, records[1].Labels, "DRAFT")
}

func TestFetchDeltaAuthFailureReportsExpired(t *testing.T) {
	client, cred := newClient(t, &fakeMailbox{err: imappkg.ErrAuthFailed})

	_, expired, err := client.FetchDelta(context.Background(), cred, "7:10")
	require.NoError(t, err)
	assert.True(t, expired)

	_, err = client.RefreshCredential(context.Background(), "")
	assert.ErrorIs(t, err, ErrNoRefresh)
}

func TestFetchDeltaUIDValidityChange(t *testing.T) {
	client, cred := newClient(t, &fakeMailbox{
		state:    &imappkg.MailboxState{UIDValidity: 8, LastUID: 3},
		messages: []imappkg.Message{{UID: 1}},
	})

	records, expired, err := client.FetchDelta(context.Background(), cred, "7:10")
	require.NoError(t, err)
	assert.False(t, expired)
	assert.Empty(t, records)
}

func TestHead(t *testing.T) {
	client, cred := newClient(t, &fakeMailbox{state: &imappkg.MailboxState{UIDValidity: 5, LastUID: 40}})

	marker, err := client.Head(context.Background(), cred)
	require.NoError(t, err)
	assert.Equal(t, "5:40", marker)
}
