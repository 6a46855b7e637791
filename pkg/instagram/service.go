package instagram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
)

const (
	defaultAuthURL  = "https://www.instagram.com/oauth/authorize"
	defaultTokenURL = "https://api.instagram.com/oauth/access_token"
	defaultGraphURL = "https://graph.instagram.com"
)

var scopes = []string{
	"instagram_business_basic",
	"instagram_business_manage_messages",
}

type Service struct {
	oauth        *oauth2.Config
	clientSecret string
	graphURL     string
	httpClient   *http.Client
}

type Option func(*Service)

// WithEndpoints points the OAuth and Graph calls at other servers.
func WithEndpoints(authURL, tokenURL, graphURL string) Option {
	return func(s *Service) {
		s.oauth.Endpoint.AuthURL = authURL
		s.oauth.Endpoint.TokenURL = tokenURL
		s.graphURL = graphURL
	}
}

func WithHTTPClient(c *http.Client) Option {
	return func(s *Service) { s.httpClient = c }
}

func NewService(clientID, clientSecret, redirectURI string, opts ...Option) *Service {
	s := &Service{
		oauth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Endpoint: oauth2.Endpoint{
				AuthURL:   defaultAuthURL,
				TokenURL:  defaultTokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
			Scopes: scopes,
		},
		clientSecret: clientSecret,
		graphURL:     defaultGraphURL,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) AuthCodeURL(state string) string {
	return s.oauth.AuthCodeURL(state,
		oauth2.SetAuthURLParam("enable_fb_login", "0"),
		oauth2.SetAuthURLParam("force_authentication", "1"),
	)
}

// Token is a long-lived Instagram user token and the professional account it
// belongs to. The account id is the one webhooks address as recipient.
type Token struct {
	AccessToken string
	UserID      string
	Username    string
	Expiry      time.Time
}

// Exchange trades an authorization code for a long-lived token and resolves
// the account it belongs to.
func (s *Service) Exchange(ctx context.Context, code string) (*Token, error) {
	short, err := s.oauth.Exchange(context.WithValue(ctx, oauth2.HTTPClient, s.httpClient), code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	token, err := s.graphToken(ctx, "/access_token", url.Values{
		"grant_type":    {"ig_exchange_token"},
		"client_secret": {s.clientSecret},
		"access_token":  {short.AccessToken},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to obtain long-lived token: %w", err)
	}

	profile, err := s.GetProfile(ctx, token.AccessToken)
	if err != nil {
		return nil, err
	}
	token.UserID = profile.UserID
	token.Username = profile.Username
	return token, nil
}

// Refresh extends a long-lived token. Instagram refreshes with the token itself.
func (s *Service) Refresh(ctx context.Context, accessToken string) (*Token, error) {
	token, err := s.graphToken(ctx, "/refresh_access_token", url.Values{
		"grant_type":   {"ig_refresh_token"},
		"access_token": {accessToken},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}
	return token, nil
}

type Profile struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

func (s *Service) GetProfile(ctx context.Context, accessToken string) (*Profile, error) {
	var profile Profile
	err := s.graphGet(ctx, "/me", url.Values{
		"fields":       {"user_id,username"},
		"access_token": {accessToken},
	}, &profile)
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	if profile.UserID == "" {
		return nil, fmt.Errorf("failed to get profile: empty user_id")
	}
	return &profile, nil
}

func (s *Service) graphToken(ctx context.Context, path string, params url.Values) (*Token, error) {
	var resp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := s.graphGet(ctx, path, params, &resp); err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, fmt.Errorf("empty access_token in response")
	}
	return &Token{
		AccessToken: resp.AccessToken,
		Expiry:      time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second),
	}, nil
}

// APIError is an error response from the Graph API.
type APIError struct {
	StatusCode int
	Message    string `json:"message"`
	Type       string `json:"type"`
	Code       int    `json:"code"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("instagram graph error %d (%s, code %d): %s", e.StatusCode, e.Type, e.Code, e.Message)
}

func (s *Service) graphGet(ctx context.Context, path string, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.graphURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var body struct {
			Error APIError `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		body.Error.StatusCode = resp.StatusCode
		return &body.Error
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
