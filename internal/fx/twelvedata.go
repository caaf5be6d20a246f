package fx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/zxcvny/capstone/pkg/httputil"
)

// TwelveDataSource reads USD/KRW from the Twelve Data exchange_rate endpoint
type TwelveDataSource struct {
	httpClient *httputil.Client
	baseURL    string
	apiKey     string
}

// NewTwelveDataSource creates the primary rate source
func NewTwelveDataSource(httpClient *httputil.Client, baseURL, apiKey string) *TwelveDataSource {
	return &TwelveDataSource{
		httpClient: httpClient,
		baseURL:    baseURL,
		apiKey:     apiKey,
	}
}

func (s *TwelveDataSource) Name() string { return "twelvedata" }

type twelveDataResponse struct {
	Symbol  string      `json:"symbol"`
	Rate    json.Number `json:"rate"`
	Status  string      `json:"status"`
	Code    int         `json:"code"`
	Message string      `json:"message"`
}

// FetchRate implements Source
func (s *TwelveDataSource) FetchRate(ctx context.Context) (float64, error) {
	if s.apiKey == "" {
		return 0, fmt.Errorf("twelvedata api key not configured")
	}

	params := url.Values{}
	params.Set("symbol", "USD/KRW")
	params.Set("apikey", s.apiKey)

	var result twelveDataResponse
	if err := s.httpClient.GetJSON(ctx, s.baseURL+"/exchange_rate?"+params.Encode(), &result); err != nil {
		return 0, fmt.Errorf("twelvedata request: %w", err)
	}

	if result.Status == "error" {
		return 0, fmt.Errorf("twelvedata error %d: %s", result.Code, result.Message)
	}

	rate, err := result.Rate.Float64()
	if err != nil {
		return 0, fmt.Errorf("twelvedata malformed rate %q: %w", result.Rate, err)
	}
	return rate, nil
}
