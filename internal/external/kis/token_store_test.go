package kis

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zxcvny/capstone/pkg/config"
	"github.com/zxcvny/capstone/pkg/httputil"
	"github.com/zxcvny/capstone/pkg/logger"
	"github.com/zxcvny/capstone/pkg/redis"
)

type tokenServer struct {
	accessCalls   atomic.Int32
	approvalCalls atomic.Int32
}

func newTokenServer(t *testing.T) (*tokenServer, *httptest.Server) {
	ts := &tokenServer{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "client_credentials", body["grant_type"])

		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/oauth2/tokenP":
			n := ts.accessCalls.Add(1)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"access_token": "access-" + string(rune('0'+n)),
				"token_type":   "Bearer",
				"expires_in":   86400,
			})
		case "/oauth2/Approval":
			assert.Equal(t, "secret", body["secretkey"])
			ts.approvalCalls.Add(1)
			json.NewEncoder(w).Encode(map[string]string{"approval_key": "approval-1"})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return ts, srv
}

func newTestTokenStore(baseURL string, cache *redis.Cache) *TokenStore {
	return NewTokenStore(
		config.KISConfig{AppKey: "key", AppSecret: "secret", BaseURL: baseURL},
		httputil.New(logger.Nop()).DisableRetry(),
		cache,
		logger.Nop(),
	)
}

func TestTokenStore_AccessTokenCachedAndPersisted(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewFromAddr(mr.Addr())
	t.Cleanup(func() { client.Close() })
	cache := redis.NewCache(client, "test")

	ts, srv := newTokenServer(t)
	ctx := context.Background()

	store := newTestTokenStore(srv.URL, cache)
	tok, err := store.AccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "access-1", tok)

	tok, err = store.AccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "access-1", tok)
	assert.Equal(t, int32(1), ts.accessCalls.Load())

	ttl := mr.TTL("test:cache:kis:token:access")
	assert.Equal(t, 86400*time.Second-tokenRefreshMargin, ttl)

	// 재시작한 프로세스는 Redis 에 저장된 토큰을 재사용
	restarted := newTestTokenStore(srv.URL, cache)
	tok, err = restarted.AccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "access-1", tok)
	assert.Equal(t, int32(1), ts.accessCalls.Load())

	restarted.Invalidate(ctx)
	tok, err = restarted.AccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "access-2", tok)
}

func TestTokenStore_RenewsExpiredToken(t *testing.T) {
	ts, srv := newTokenServer(t)
	store := newTestTokenStore(srv.URL, redis.NewCache(redis.Disabled(), "test"))

	now := time.Date(2024, 6, 14, 9, 0, 0, 0, KST)
	store.now = func() time.Time { return now }

	_, err := store.AccessToken(context.Background())
	require.NoError(t, err)

	now = now.Add(24 * time.Hour)
	tok, err := store.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "access-2", tok)
	assert.Equal(t, int32(2), ts.accessCalls.Load())
}

func TestTokenStore_ApprovalKey(t *testing.T) {
	ts, srv := newTokenServer(t)
	store := newTestTokenStore(srv.URL, redis.NewCache(redis.Disabled(), "test"))

	for i := 0; i < 3; i++ {
		key, err := store.ApprovalKey(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "approval-1", key)
	}
	assert.Equal(t, int32(1), ts.approvalCalls.Load())
}

func TestTokenStore_UpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error_code":"EGW00133","error_description":"접근토큰 발급 잠시 후 다시 시도하세요(1분당 1회)"}`))
	}))
	t.Cleanup(srv.Close)

	store := newTestTokenStore(srv.URL, redis.NewCache(redis.Disabled(), "test"))
	_, err := store.AccessToken(context.Background())
	require.Error(t, err)

	var statusErr *httputil.StatusError
	assert.ErrorAs(t, err, &statusErr)
}
