package notification

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	authdomain "cochat-backend/internal/auth/domain"
	msgdomain "cochat-backend/internal/message/domain"
	"cochat-backend/pkg/natsjs"
)

const bodyPreviewRunes = 50

// Pusher delivers device push notifications; *fcm.Client implements it.
type Pusher interface {
	Push(ctx context.Context, tokens []string, title, body string, data map[string]string) ([]string, error)
}

// DeviceTokens is the part of the FCM token repository the dispatcher needs.
type DeviceTokens interface {
	GetTokensByUserID(userID string) ([]authdomain.FCMToken, error)
	DeleteTokens(tokens []string) error
}

// EventStream pushes live events to connected clients; *sse.Manager implements it.
type EventStream interface {
	SendToUser(userID, event string, data any)
}

// EventPublisher is a durable event bus; *natsjs.Publisher implements it.
type EventPublisher interface {
	PublishJSON(ctx context.Context, subject string, payload any, msgID string) error
}

// Indexer adds messages to the semantic index; *chroma.ChromaClient implements it.
type Indexer interface {
	UpsertMessage(ctx context.Context, messageID, userID, provider, category, subject, content string) error
}

// Dispatcher fans an accepted message out to every configured sink. Sink
// failures are logged and never returned: the message is already stored.
type Dispatcher struct {
	pusher    Pusher
	tokens    DeviceTokens
	stream    EventStream
	publisher EventPublisher
	indexer   Indexer
	timeout   time.Duration
}

type DispatcherOption func(*Dispatcher)

func WithPush(pusher Pusher, tokens DeviceTokens) DispatcherOption {
	return func(d *Dispatcher) {
		d.pusher = pusher
		d.tokens = tokens
	}
}

func WithEventStream(s EventStream) DispatcherOption {
	return func(d *Dispatcher) { d.stream = s }
}

func WithPublisher(p EventPublisher) DispatcherOption {
	return func(d *Dispatcher) { d.publisher = p }
}

func WithIndexer(i Indexer) DispatcherOption {
	return func(d *Dispatcher) { d.indexer = i }
}

func NewDispatcher(opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{timeout: 10 * time.Second}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// MessageEvent is the payload published for an accepted message.
type MessageEvent struct {
	MessageID   string    `json:"message_id"`
	UserID      string    `json:"user_id"`
	Provider    string    `json:"provider"`
	SenderID    string    `json:"sender_id"`
	ReceiverID  string    `json:"receiver_id"`
	Subject     string    `json:"subject,omitempty"`
	Summary     string    `json:"summary,omitempty"`
	Category    string    `json:"category"`
	Recommended bool      `json:"recommended"`
	ReceivedAt  time.Time `json:"received_at"`
}

func eventOf(m *msgdomain.Message) MessageEvent {
	return MessageEvent{
		MessageID:   m.ID,
		UserID:      m.UserID,
		Provider:    m.Provider,
		SenderID:    m.SenderID,
		ReceiverID:  m.ReceiverID,
		Subject:     m.SubjectText(),
		Summary:     m.Summary,
		Category:    m.Category,
		Recommended: m.Recommended,
		ReceivedAt:  m.ReceivedAt,
	}
}

func (d *Dispatcher) Notify(ctx context.Context, m *msgdomain.Message) error {
	event := eventOf(m)

	if d.stream != nil {
		d.stream.SendToUser(m.UserID, "message", event)
	}
	if d.pusher != nil && d.tokens != nil {
		d.push(ctx, m)
	}
	if d.publisher != nil {
		pctx, cancel := context.WithTimeout(ctx, d.timeout)
		if err := d.publisher.PublishJSON(pctx, natsjs.AcceptedSubject(m.UserID), event, m.ID); err != nil {
			log.Printf("[Notify] Failed to publish message %s: %v", m.ID, err)
		}
		cancel()
	}
	if d.indexer != nil {
		ictx, cancel := context.WithTimeout(ctx, d.timeout)
		err := d.indexer.UpsertMessage(ictx, m.ID, m.UserID, m.Provider, m.Category, m.SubjectText(), m.Content)
		if err != nil {
			log.Printf("[Notify] Failed to index message %s: %v", m.ID, err)
		}
		cancel()
	}
	return nil
}

func (d *Dispatcher) push(ctx context.Context, m *msgdomain.Message) {
	tokens, err := d.tokens.GetTokensByUserID(m.UserID)
	if err != nil {
		log.Printf("[FCM] Error getting FCM tokens for user %s: %v", m.UserID, err)
		return
	}
	if len(tokens) == 0 {
		return
	}
	deviceTokens := make([]string, len(tokens))
	for i, t := range tokens {
		deviceTokens[i] = t.Token
	}

	pctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	failed, err := d.pusher.Push(pctx, deviceTokens, pushTitle(m), pushBody(m), pushData(m))
	if err != nil {
		log.Printf("[FCM] Error sending notification for message %s: %v", m.ID, err)
		return
	}
	if len(failed) > 0 {
		log.Printf("[FCM] Cleaning up %d failed tokens", len(failed))
		if err := d.tokens.DeleteTokens(failed); err != nil {
			log.Printf("[FCM] Error deleting failed tokens: %v", err)
		}
	}
}

func pushTitle(m *msgdomain.Message) string {
	switch m.Provider {
	case "instagram":
		return "New Instagram message"
	case "gmail":
		return fmt.Sprintf("New email from %s", m.SenderID)
	default:
		return fmt.Sprintf("New message from %s", m.SenderID)
	}
}

// pushBody is the summary, or the start of the content when there is none.
func pushBody(m *msgdomain.Message) string {
	if m.Summary != "" {
		return m.Summary
	}
	r := []rune(m.Content)
	if len(r) > bodyPreviewRunes {
		return string(r[:bodyPreviewRunes])
	}
	return m.Content
}

func pushData(m *msgdomain.Message) map[string]string {
	return map[string]string{
		"type":        "message",
		"message_id":  m.ID,
		"messenger":   m.Provider,
		"sender_id":   m.SenderID,
		"receiver_id": m.ReceiverID,
		"category":    m.Category,
		"recommended": strconv.FormatBool(m.Recommended),
		"timestamp":   m.ReceivedAt.UTC().Format(time.RFC3339),
	}
}
