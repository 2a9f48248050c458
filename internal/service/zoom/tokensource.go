package zoom

import (
	"context"
	"sync"
	"time"

	zoommodel "github.com/zhouzirui/zoom-rtms/backend/internal/model/zoom"
)

// AccessTokenFetcher is the credential provider contract.
type AccessTokenFetcher interface {
	FetchAccessToken(ctx context.Context, cred zoommodel.Credential) (zoommodel.AccessToken, error)
}

// TokenProvider hands out a currently valid access token.
type TokenProvider interface {
	Token(ctx context.Context) (zoommodel.AccessToken, error)
	Invalidate()
}

// DefaultExpirySkew refreshes tokens shortly before Zoom would reject them.
const DefaultExpirySkew = 30 * time.Second

// TokenSource caches one access token and refreshes it on expiry.
type TokenSource struct {
	fetcher AccessTokenFetcher
	cred    zoommodel.Credential
	skew    time.Duration
	now     func() time.Time

	mu      sync.Mutex
	current zoommodel.AccessToken
}

// NewTokenSource wraps fetcher with an expiry-aware cache for cred.
func NewTokenSource(fetcher AccessTokenFetcher, cred zoommodel.Credential) *TokenSource {
	return &TokenSource{
		fetcher: fetcher,
		cred:    cred,
		skew:    DefaultExpirySkew,
		now:     time.Now,
	}
}

// Token returns the cached token, fetching a new one when absent or expired.
// Concurrent callers share a single in-flight fetch.
func (s *TokenSource) Token(ctx context.Context) (zoommodel.AccessToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.current.ExpiredAt(s.now(), s.skew) {
		return s.current, nil
	}

	token, err := s.fetcher.FetchAccessToken(ctx, s.cred)
	if err != nil {
		s.current = zoommodel.AccessToken{}
		return zoommodel.AccessToken{}, err
	}
	s.current = token
	return token, nil
}

// Invalidate drops the cached token so the next Token call refetches.
func (s *TokenSource) Invalidate() {
	s.mu.Lock()
	s.current = zoommodel.AccessToken{}
	s.mu.Unlock()
}
