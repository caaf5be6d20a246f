package fx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zxcvny/capstone/pkg/httputil"
	"github.com/zxcvny/capstone/pkg/logger"
)

func newHTTPClient() *httputil.Client {
	return httputil.New(logger.Nop()).DisableRetry()
}

func TestTwelveDataSource(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    float64
		wantErr bool
	}{
		{"numeric rate", 200, `{"symbol":"USD/KRW","rate":1365.42,"timestamp":1709546400}`, 1365.42, false},
		{"string rate", 200, `{"symbol":"USD/KRW","rate":"1365.5"}`, 1365.5, false},
		{"api error", 200, `{"code":429,"message":"run out of API credits","status":"error"}`, 0, true},
		{"non 200", 503, `oops`, 0, true},
		{"malformed", 200, `{"rate":`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/exchange_rate", r.URL.Path)
				assert.Equal(t, "USD/KRW", r.URL.Query().Get("symbol"))
				assert.Equal(t, "key", r.URL.Query().Get("apikey"))
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			rate, err := NewTwelveDataSource(newHTTPClient(), server.URL, "key").FetchRate(context.Background())
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, rate)
		})
	}
}

func TestTwelveDataSource_MissingKey(t *testing.T) {
	_, err := NewTwelveDataSource(newHTTPClient(), "http://unused", "").FetchRate(context.Background())
	assert.Error(t, err)
}

func TestNaverSource(t *testing.T) {
	page := `<html><body>
<div id="exchangeList">
  <ul>
    <li class="on"><a><h3><span class="blind">미국 USD</span></h3><div class="head_info"><span class="value">1,372.50</span></div></a></li>
    <li><a><div class="head_info"><span class="value">905.10</span></div></a></li>
  </ul>
</div></body></html>`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/marketindex/", r.URL.Path)
		w.Write([]byte(page))
	}))
	defer server.Close()

	rate, err := NewNaverSource(newHTTPClient(), server.URL).FetchRate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1372.5, rate)
}

func TestNaverSource_MissingElement(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>maintenance</body></html>`))
	}))
	defer server.Close()

	_, err := NewNaverSource(newHTTPClient(), server.URL).FetchRate(context.Background())
	assert.Error(t, err)
}
