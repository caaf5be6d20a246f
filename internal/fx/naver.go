package fx

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/transform"

	"github.com/zxcvny/capstone/pkg/httputil"
)

// NaverSource scrapes the USD/KRW quote from the Naver Finance market index page.
// Fallback when the primary API is down or out of quota.
type NaverSource struct {
	httpClient *httputil.Client
	baseURL    string
}

// NewNaverSource creates the fallback rate source
func NewNaverSource(httpClient *httputil.Client, baseURL string) *NaverSource {
	return &NaverSource{
		httpClient: httpClient,
		baseURL:    baseURL,
	}
}

func (s *NaverSource) Name() string { return "naver" }

// FetchRate implements Source
func (s *NaverSource) FetchRate(ctx context.Context) (float64, error) {
	resp, err := s.httpClient.Get(ctx, s.baseURL+"/marketindex/")
	if err != nil {
		return 0, fmt.Errorf("naver request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("naver unexpected status code: %d", resp.StatusCode)
	}

	// 네이버 금융 페이지는 EUC-KR
	body := transform.NewReader(resp.Body, korean.EUCKR.NewDecoder())
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return 0, fmt.Errorf("naver parse html: %w", err)
	}

	return parseNaverRate(doc)
}

// parseNaverRate prefers the USD entry of the exchange list, then any first .value
func parseNaverRate(doc *goquery.Document) (float64, error) {
	candidates := []string{
		"#exchangeList li.on .value",
		"#exchangeList li .value",
		".value",
	}

	for _, selector := range candidates {
		text := strings.TrimSpace(doc.Find(selector).First().Text())
		if text == "" {
			continue
		}
		rate, err := strconv.ParseFloat(strings.ReplaceAll(text, ",", ""), 64)
		if err != nil {
			return 0, fmt.Errorf("naver malformed rate %q: %w", text, err)
		}
		return rate, nil
	}

	return 0, fmt.Errorf("naver rate element not found")
}
