package imap

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/emersion/go-imap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type brokenLiteral struct{}

func (brokenLiteral) Read(p []byte) (int, error) { return 0, errors.New("connection reset") }
func (brokenLiteral) Len() int                   { return 10 }

func fetched(uid uint32, body imap.Literal) *imap.Message {
	return &imap.Message{
		Uid:      uid,
		Flags:    []string{imap.SeenFlag},
		Envelope: &imap.Envelope{Subject: "hello", From: []*imap.Address{{MailboxName: "Ann", HostName: "Example.com"}}},
		Body:     map[*imap.BodySectionName]imap.Literal{{}: body},
	}
}

func TestCollectSkipsAlreadySeenAndTracksLastUID(t *testing.T) {
	ch := make(chan *imap.Message, 3)
	ch <- fetched(7, bytes.NewReader([]byte("old")))
	ch <- fetched(9, bytes.NewReader([]byte("raw 9")))
	ch <- fetched(8, bytes.NewReader([]byte("raw 8")))
	close(ch)

	state := &MailboxState{UIDValidity: 3, LastUID: 7}
	out, err := collect(ch, &imap.BodySectionName{Peek: true}, 7, state)
	require.NoError(t, err)

	require.Len(t, out, 2)
	assert.Equal(t, "raw 9", string(out[0].Raw))
	assert.Equal(t, "ann@example.com", out[0].From)
	assert.Equal(t, uint32(9), state.LastUID)
}

func TestCollectDrainsAfterReadError(t *testing.T) {
	ch := make(chan *imap.Message)
	sent := make(chan int, 1)
	go func() {
		n := 0
		for _, m := range []*imap.Message{
			fetched(1, bytes.NewReader([]byte("a"))),
			fetched(2, brokenLiteral{}),
			fetched(3, bytes.NewReader([]byte("c"))),
			fetched(4, bytes.NewReader([]byte("d"))),
		} {
			ch <- m
			n++
		}
		close(ch)
		sent <- n
	}()

	_, err := collect(ch, &imap.BodySectionName{Peek: true}, 0, &MailboxState{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read message 2")

	select {
	case n := <-sent:
		assert.Equal(t, 4, n, "every fetched message is received")
	case <-time.After(time.Second):
		t.Fatal("fetch goroutine still blocked on the channel")
	}
}
