package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"TickerScreen/internal/model"
)

// PolygonFetcher implements Fetcher using the Polygon grouped daily aggregates API.
type PolygonFetcher struct {
	BaseURL string
	APIKey  string
	Client  *http.Client

	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

// NewPolygonFetcher creates a fetcher with optional proxy support.
// requestsPerMinute <= 0 disables client-side rate limiting.
func NewPolygonFetcher(baseURL, apiKey, proxyURL string, timeout time.Duration, requestsPerMinute int) *PolygonFetcher {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}

	limit := rate.Inf
	if requestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(requestsPerMinute))
	}

	st := gobreaker.Settings{Name: "polygon"}
	st.Timeout = time.Minute
	st.ReadyToTrip = func(counts gobreaker.Counts) bool { return counts.ConsecutiveFailures >= 5 }
	st.OnStateChange = func(name string, from, to gobreaker.State) {
		log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("provider circuit state changed")
	}

	return &PolygonFetcher{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		limiter: rate.NewLimiter(limit, 1),
		breaker: gobreaker.NewCircuitBreaker(st),
	}
}

func (f *PolygonFetcher) Name() string { return "polygon" }

// groupedResponse is the response envelope of /v2/aggs/grouped.
type groupedResponse struct {
	Status       string         `json:"status"`
	ResultsCount int            `json:"resultsCount"`
	Results      []model.RawBar `json:"results"`
	Error        string         `json:"error"`
	Message      string         `json:"message"`
}

func (f *PolygonFetcher) FetchGroupedDaily(ctx context.Context, market, locale string, date time.Time) ([]model.RawBar, error) {
	day := date.Format(time.DateOnly)

	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %s: rate limiter: %v", ErrFetch, day, err)
	}

	res, err := f.breaker.Execute(func() (interface{}, error) {
		return f.fetchGrouped(ctx, market, locale, day)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %s", ErrBreakerOpen, day)
		}
		return nil, err
	}
	return res.([]model.RawBar), nil
}

func (f *PolygonFetcher) fetchGrouped(ctx context.Context, market, locale, day string) ([]model.RawBar, error) {
	endpoint := fmt.Sprintf("%s/v2/aggs/grouped/locale/%s/market/%s/%s?adjusted=true",
		f.BaseURL, url.PathEscape(locale), url.PathEscape(market), day)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrFetch, day, err)
	}
	if f.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.APIKey)
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrFetch, day, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: read body: %v", ErrFetch, day, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s: status %d, body: %s", ErrFetch, day, resp.StatusCode, string(body))
	}

	var out groupedResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("%w: %s: decode: %v", ErrFetch, day, err)
	}
	if out.Status == "ERROR" {
		msg := out.Error
		if msg == "" {
			msg = out.Message
		}
		return nil, fmt.Errorf("%w: %s: api error: %s", ErrFetch, day, msg)
	}

	log.Debug().Str("date", day).Int("results", len(out.Results)).Msg("grouped daily fetched")
	return out.Results, nil
}
