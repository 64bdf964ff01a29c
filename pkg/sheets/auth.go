package sheets

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rotisserie/eris"
)

const (
	defaultTokenURL   = "https://oauth2.googleapis.com/token"
	scopeSpreadsheets = "https://www.googleapis.com/auth/spreadsheets"
	jwtBearerGrant    = "urn:ietf:params:oauth:grant-type:jwt-bearer"
)

// TokenSource supplies bearer tokens for API calls.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a fixed bearer token.
type StaticToken string

// Token returns the fixed token.
func (s StaticToken) Token(context.Context) (string, error) { return string(s), nil }

// ServiceAccountKey is the subset of a Google service-account JSON key used
// for the JWT bearer flow.
type ServiceAccountKey struct {
	ClientEmail  string `json:"client_email"`
	PrivateKey   string `json:"private_key"`
	PrivateKeyID string `json:"private_key_id"`
	TokenURI     string `json:"token_uri"`
}

// LoadServiceAccountKey reads a service-account key file.
func LoadServiceAccountKey(path string) (*ServiceAccountKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "sheets: read credentials %s", path)
	}
	var key ServiceAccountKey
	if err := json.Unmarshal(data, &key); err != nil {
		return nil, eris.Wrap(err, "sheets: parse credentials")
	}
	if key.ClientEmail == "" || key.PrivateKey == "" {
		return nil, eris.New("sheets: credentials missing client_email or private_key")
	}
	return &key, nil
}

// ServiceAccountTokenSource exchanges a signed JWT for an access token and
// caches it until shortly before expiry.
type ServiceAccountTokenSource struct {
	key      *ServiceAccountKey
	tokenURL string
	http     *http.Client
	now      func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

// NewServiceAccountTokenSource builds a token source. An empty tokenURL falls
// back to the key's token_uri and then to Google's default endpoint.
func NewServiceAccountTokenSource(key *ServiceAccountKey, tokenURL string, hc *http.Client) *ServiceAccountTokenSource {
	if tokenURL == "" {
		tokenURL = key.TokenURI
	}
	if tokenURL == "" {
		tokenURL = defaultTokenURL
	}
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &ServiceAccountTokenSource{key: key, tokenURL: tokenURL, http: hc, now: time.Now}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// Token returns a cached access token or fetches a new one.
func (s *ServiceAccountTokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.token != "" && now.Add(time.Minute).Before(s.expires) {
		return s.token, nil
	}

	assertion, err := s.sign(now)
	if err != nil {
		return "", err
	}

	form := url.Values{}
	form.Set("grant_type", jwtBearerGrant)
	form.Set("assertion", assertion)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", eris.Wrap(err, "sheets: create token request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.http.Do(req)
	if err != nil {
		return "", eris.Wrap(err, "sheets: token request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", eris.Wrap(err, "sheets: read token response")
	}
	if resp.StatusCode != http.StatusOK {
		return "", &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", eris.Wrap(err, "sheets: unmarshal token response")
	}
	if tr.AccessToken == "" {
		return "", eris.New("sheets: token response missing access_token")
	}

	s.token = tr.AccessToken
	s.expires = now.Add(time.Duration(tr.ExpiresIn) * time.Second)
	return s.token, nil
}

func (s *ServiceAccountTokenSource) sign(now time.Time) (string, error) {
	pk, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(s.key.PrivateKey))
	if err != nil {
		return "", eris.Wrap(err, "sheets: parse private key")
	}
	claims := jwt.MapClaims{
		"iss":   s.key.ClientEmail,
		"scope": scopeSpreadsheets,
		"aud":   s.tokenURL,
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if s.key.PrivateKeyID != "" {
		tok.Header["kid"] = s.key.PrivateKeyID
	}
	signed, err := tok.SignedString(pk)
	if err != nil {
		return "", eris.Wrap(err, "sheets: sign assertion")
	}
	return signed, nil
}
