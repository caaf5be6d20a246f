package kis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/zxcvny/capstone/pkg/config"
	"github.com/zxcvny/capstone/pkg/httputil"
	"github.com/zxcvny/capstone/pkg/logger"
	"github.com/zxcvny/capstone/pkg/redis"
)

// TokenProvider supplies KIS credentials. Implementations cache and renew internally.
type TokenProvider interface {
	AccessToken(ctx context.Context) (string, error)
	ApprovalKey(ctx context.Context) (string, error)
}

const (
	tokenKindAccess   = "access"
	tokenKindApproval = "approval"

	// tokenRefreshMargin renews tokens this long before upstream expiry
	tokenRefreshMargin = 60 * time.Second
)

// storedToken is the persisted form of a credential
type storedToken struct {
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (t storedToken) valid(now time.Time) bool {
	return t.Value != "" && now.Before(t.ExpiresAt)
}

// TokenStore issues and caches the REST access token and the websocket approval key.
// Tokens are kept in memory and persisted to Redis so a restart reuses them
// (KIS throttles token issuance to about one per minute).
// ⭐ SSOT: KIS 인증 토큰은 여기서만 발급
type TokenStore struct {
	httpClient *httputil.Client
	cache      *redis.Cache
	logger     *logger.Logger
	cfg        config.KISConfig
	now        func() time.Time

	mu       sync.Mutex
	access   storedToken
	approval storedToken
}

// NewTokenStore creates a token store. cache may wrap a disabled Redis client.
func NewTokenStore(cfg config.KISConfig, httpClient *httputil.Client, cache *redis.Cache, log *logger.Logger) *TokenStore {
	return &TokenStore{
		httpClient: httpClient,
		cache:      cache,
		logger:     log.WithComponent("kis.token"),
		cfg:        cfg,
		now:        time.Now,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type approvalResponse struct {
	ApprovalKey string `json:"approval_key"`
}

// AccessToken returns a valid bearer token, issuing a new one when needed
func (s *TokenStore) AccessToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.access.valid(s.now()) {
		return s.access.Value, nil
	}
	if t, ok := s.loadPersisted(ctx, tokenKindAccess); ok {
		s.access = t
		return t.Value, nil
	}

	body := map[string]string{
		"grant_type": "client_credentials",
		"appkey":     s.cfg.AppKey,
		"appsecret":  s.cfg.AppSecret,
	}
	resp, err := s.httpClient.PostJSON(ctx, s.cfg.BaseURL+"/oauth2/tokenP", body)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}

	var tokenResp tokenResponse
	if err := httputil.DecodeJSON(resp, &tokenResp); err != nil {
		return "", fmt.Errorf("token response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return "", fmt.Errorf("token response missing access_token")
	}

	ttl := time.Duration(tokenResp.ExpiresIn)*time.Second - tokenRefreshMargin
	if ttl <= 0 {
		ttl = time.Minute
	}
	s.access = storedToken{Value: tokenResp.AccessToken, ExpiresAt: s.now().Add(ttl)}
	s.persist(ctx, tokenKindAccess, s.access, ttl)

	s.logger.WithFields(map[string]interface{}{
		"expires_in": tokenResp.ExpiresIn,
	}).Info("KIS access token refreshed")

	return s.access.Value, nil
}

// ApprovalKey returns the websocket approval key, issuing a new one when needed
func (s *TokenStore) ApprovalKey(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.approval.valid(s.now()) {
		return s.approval.Value, nil
	}
	if t, ok := s.loadPersisted(ctx, tokenKindApproval); ok {
		s.approval = t
		return t.Value, nil
	}

	body := map[string]string{
		"grant_type": "client_credentials",
		"appkey":     s.cfg.AppKey,
		"secretkey":  s.cfg.AppSecret,
	}
	resp, err := s.httpClient.PostJSON(ctx, s.cfg.BaseURL+"/oauth2/Approval", body)
	if err != nil {
		return "", fmt.Errorf("approval request failed: %w", err)
	}

	var result approvalResponse
	if err := httputil.DecodeJSON(resp, &result); err != nil {
		return "", fmt.Errorf("approval response: %w", err)
	}
	if result.ApprovalKey == "" {
		return "", fmt.Errorf("approval response missing approval_key")
	}

	s.approval = storedToken{Value: result.ApprovalKey, ExpiresAt: s.now().Add(redis.TTLApproval)}
	s.persist(ctx, tokenKindApproval, s.approval, redis.TTLApproval)

	s.logger.Info("KIS websocket approval key issued")
	return s.approval.Value, nil
}

// Invalidate drops the cached access token (e.g. after an EGW00123 expired-token reply)
func (s *TokenStore) Invalidate(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.access = storedToken{}
	if err := s.cache.Delete(ctx, redis.TokenKey(tokenKindAccess)); err != nil {
		s.logger.WithError(err).Warn("Failed to delete persisted access token")
	}
}

func (s *TokenStore) loadPersisted(ctx context.Context, kind string) (storedToken, bool) {
	var t storedToken
	found, err := s.cache.Get(ctx, redis.TokenKey(kind), &t)
	if err != nil {
		s.logger.WithError(err).WithField("kind", kind).Warn("Failed to read persisted token")
		return storedToken{}, false
	}
	if !found || !t.valid(s.now()) {
		return storedToken{}, false
	}
	return t, true
}

func (s *TokenStore) persist(ctx context.Context, kind string, t storedToken, ttl time.Duration) {
	if err := s.cache.Set(ctx, redis.TokenKey(kind), t, ttl); err != nil {
		s.logger.WithError(err).WithField("kind", kind).Warn("Failed to persist token")
	}
}
