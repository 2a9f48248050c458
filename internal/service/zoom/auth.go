package zoom

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	zoommodel "github.com/zhouzirui/zoom-rtms/backend/internal/model/zoom"
	applog "github.com/zhouzirui/zoom-rtms/backend/pkg/log"
)

const maxErrorBody = 4 << 10

// TokenRecorder receives one observation per token exchange.
type TokenRecorder interface {
	RecordTokenRequest(kind string, err error)
}

// OAuthClient performs the account_credentials grant.
type OAuthClient struct {
	httpClient *http.Client
	tokenURL   string
	recorder   TokenRecorder
	now        func() time.Time
	logger     *logrus.Entry
}

type oauthResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	Scope       string `json:"scope"`
}

// NewOAuthClient creates a credential provider against tokenURL.
func NewOAuthClient(httpClient *http.Client, tokenURL string, recorder TokenRecorder) *OAuthClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &OAuthClient{
		httpClient: httpClient,
		tokenURL:   tokenURL,
		recorder:   recorder,
		now:        time.Now,
		logger:     applog.WithComponent("zoom-oauth"),
	}
}

// FetchAccessToken exchanges cred for a bearer token with a single request.
func (c *OAuthClient) FetchAccessToken(ctx context.Context, cred zoommodel.Credential) (token zoommodel.AccessToken, err error) {
	defer func() {
		if c.recorder != nil {
			c.recorder.RecordTokenRequest("access", err)
		}
	}()

	if !cred.Valid() {
		return zoommodel.AccessToken{}, fmt.Errorf("%w: %w", ErrCredential, ErrInvalidCredential)
	}

	endpoint, err := url.Parse(c.tokenURL)
	if err != nil {
		return zoommodel.AccessToken{}, fmt.Errorf("%w: invalid token url: %v", ErrCredential, err)
	}
	query := endpoint.Query()
	query.Set("grant_type", "account_credentials")
	query.Set("account_id", cred.AccountID)
	endpoint.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), nil)
	if err != nil {
		return zoommodel.AccessToken{}, fmt.Errorf("%w: build request: %v", ErrCredential, err)
	}
	req.SetBasicAuth(cred.ClientID, cred.ClientSecret)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return zoommodel.AccessToken{}, fmt.Errorf("%w: %v", ErrCredential, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body := readErrorBody(resp.Body)
		c.logger.WithField("status", resp.StatusCode).Errorf("failed to get access token: %s", body)
		return zoommodel.AccessToken{}, &APIError{
			Op:         "fetch access token",
			StatusCode: resp.StatusCode,
			Body:       body,
			kind:       ErrCredential,
		}
	}

	var payload oauthResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return zoommodel.AccessToken{}, fmt.Errorf("%w: decode response: %v", ErrCredential, err)
	}
	if payload.AccessToken == "" {
		return zoommodel.AccessToken{}, fmt.Errorf("%w: %w", ErrCredential, ErrEmptyToken)
	}

	token = zoommodel.AccessToken{
		Value:     payload.AccessToken,
		TokenType: payload.TokenType,
		Scope:     payload.Scope,
	}
	if payload.ExpiresIn > 0 {
		token.ExpiresAt = c.now().Add(time.Duration(payload.ExpiresIn) * time.Second)
	}
	return token, nil
}

func readErrorBody(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	return strings.TrimSpace(string(data))
}
