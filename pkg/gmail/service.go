package gmail

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"cochat-backend/pkg/mimetree"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const historyPageSize = 100

type Service struct {
	oauth         *oauth2.Config
	clientOptions []option.ClientOption
}

type Option func(*Service)

// WithClientOptions adds options to every Gmail API client, e.g. an
// alternate endpoint.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(s *Service) { s.clientOptions = append(s.clientOptions, opts...) }
}

// WithTokenURL points credential exchange and refresh at another server.
func WithTokenURL(url string) Option {
	return func(s *Service) { s.oauth.Endpoint.TokenURL = url }
}

func NewService(clientID, clientSecret, redirectURI string, opts ...Option) *Service {
	s := &Service{
		oauth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Endpoint:     google.Endpoint,
			Scopes:       []string{gmail.GmailReadonlyScope},
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AuthCodeURL asks for offline access so a refresh token is issued.
func (s *Service) AuthCodeURL(state string) string {
	return s.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

func (s *Service) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	return token, nil
}

// Refresh trades a refresh token for a new access token.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	token, err := s.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}
	return token, nil
}

// GetGmailService builds a client bound to one access token. The token is
// never refreshed behind the caller's back: an expired token surfaces as a
// 401 so the caller decides when to refresh.
func (s *Service) GetGmailService(ctx context.Context, accessToken string) (*gmail.Service, error) {
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))

	opts := append([]option.ClientOption{option.WithHTTPClient(client)}, s.clientOptions...)
	srv, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %w", err)
	}
	return srv, nil
}

type Profile struct {
	EmailAddress string
	HistoryID    uint64
}

func (s *Service) GetProfile(ctx context.Context, accessToken string) (*Profile, error) {
	srv, err := s.GetGmailService(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	p, err := srv.Users.GetProfile("me").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("unable to get profile: %w", err)
	}
	return &Profile{EmailAddress: strings.ToLower(p.EmailAddress), HistoryID: p.HistoryId}, nil
}

// Watch (re)registers INBOX push notifications on topicName.
func (s *Service) Watch(ctx context.Context, accessToken, topicName string) (uint64, time.Time, error) {
	srv, err := s.GetGmailService(ctx, accessToken)
	if err != nil {
		return 0, time.Time{}, err
	}

	// only one watch per mailbox is allowed
	_ = srv.Users.Stop("me").Context(ctx).Do()

	resp, err := srv.Users.Watch("me", &gmail.WatchRequest{
		TopicName: topicName,
		LabelIds:  []string{"INBOX"},
	}).Context(ctx).Do()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("unable to watch mailbox: %w", err)
	}
	log.Printf("[Gmail] watch started on %s, historyId=%d", topicName, resp.HistoryId)
	return resp.HistoryId, time.UnixMilli(resp.Expiration), nil
}

func (s *Service) Stop(ctx context.Context, accessToken string) error {
	srv, err := s.GetGmailService(ctx, accessToken)
	if err != nil {
		return err
	}
	if err := srv.Users.Stop("me").Context(ctx).Do(); err != nil {
		return fmt.Errorf("unable to stop mailbox watch: %w", err)
	}
	return nil
}

// ListAddedMessages returns the IDs of messages added after startHistoryID,
// oldest first, each ID once.
func ListAddedMessages(ctx context.Context, srv *gmail.Service, startHistoryID uint64) ([]string, error) {
	seen := make(map[string]bool)
	var ids []string
	err := srv.Users.History.List("me").
		StartHistoryId(startHistoryID).
		HistoryTypes("messageAdded").
		MaxResults(historyPageSize).
		Pages(ctx, func(page *gmail.ListHistoryResponse) error {
			for _, h := range page.History {
				for _, added := range h.MessagesAdded {
					if added.Message == nil || seen[added.Message.Id] {
						continue
					}
					seen[added.Message.Id] = true
					ids = append(ids, added.Message.Id)
				}
			}
			return nil
		})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func GetMessage(ctx context.Context, srv *gmail.Service, id string) (*gmail.Message, error) {
	return srv.Users.Messages.Get("me", id).Format("full").Context(ctx).Do()
}

func IsUnauthorized(err error) bool {
	return apiErrorCode(err) == http.StatusUnauthorized
}

func IsNotFound(err error) bool {
	return apiErrorCode(err) == http.StatusNotFound
}

func apiErrorCode(err error) int {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code
	}
	return 0
}

func Header(headers []*gmail.MessagePartHeader, name string) string {
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// ToPart converts a Gmail payload into a mimetree, decoding inline bodies.
// Attachment bodies are referenced by ID and stay empty.
func ToPart(p *gmail.MessagePart) *mimetree.Part {
	if p == nil {
		return nil
	}
	part := &mimetree.Part{MimeType: p.MimeType, Filename: p.Filename}
	if p.Body != nil && p.Body.Data != "" {
		if data, err := decodeBase64URL(p.Body.Data); err == nil {
			part.Body = data
		}
	}
	for _, child := range p.Parts {
		part.Parts = append(part.Parts, ToPart(child))
	}
	return part
}

func decodeBase64URL(s string) ([]byte, error) {
	if data, err := base64.URLEncoding.DecodeString(s); err == nil {
		return data, nil
	}
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}
