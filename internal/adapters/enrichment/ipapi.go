// Package enrichment resolves source addresses to geographic and network
// metadata for events and incident reports.
//
// Providers:
//   - IPAPIEnricher: free ip-api.com JSON endpoint (45 requests/minute)
//   - CachedEnricher: LRU decorator that absorbs repeated lookups
//
// Every provider may fail. The engine treats a failed lookup as an empty
// enrichment, so nothing here can influence a detection decision.
package enrichment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/Reddy-45/siem/internal/domain"
)

var (
	ErrRateLimited  = errors.New("enrichment rate limit exceeded")
	ErrLookupFailed = errors.New("enrichment lookup failed")
)

const ipAPIFields = "status,message,country,city,isp,as,query"

// IPAPIConfig configures the ip-api.com provider.
type IPAPIConfig struct {
	BaseURL       string        // Default: http://ip-api.com/json
	Timeout       time.Duration // HTTP client timeout (default: 5s)
	RatePerMinute int           // Token bucket refill (default: 45, free tier)
	SkipPrivate   bool          // Return empty enrichment for non-routable addresses
	HTTPClient    *http.Client  // Optional client override
}

func DefaultIPAPIConfig() IPAPIConfig {
	return IPAPIConfig{
		BaseURL:       "http://ip-api.com/json",
		Timeout:       5 * time.Second,
		RatePerMinute: 45,
		SkipPrivate:   true,
	}
}

// ipAPIResponse represents the JSON response from ip-api.com.
type ipAPIResponse struct {
	Status  string `json:"status"`  // "success" or "fail"
	Message string `json:"message"` // Error message if status is "fail"
	Country string `json:"country"`
	City    string `json:"city"`
	ISP     string `json:"isp"`
	AS      string `json:"as"` // e.g. "AS15169 Google LLC"
	Query   string `json:"query"`
}

// IPAPIEnricher queries ip-api.com.
//
// Resilience:
//   - Token bucket limiter; lookups beyond the budget fail fast with
//     ErrRateLimited instead of queueing
//   - Circuit breaker opens after repeated transport failures so a dead
//     upstream costs nothing on the ingestion path
type IPAPIEnricher struct {
	client      *http.Client
	baseURL     string
	limiter     *rate.Limiter
	cb          *gobreaker.CircuitBreaker[domain.Enrichment]
	skipPrivate bool
}

func NewIPAPIEnricher(cfg IPAPIConfig) *IPAPIEnricher {
	def := DefaultIPAPIConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.RatePerMinute <= 0 {
		cfg.RatePerMinute = def.RatePerMinute
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	return &IPAPIEnricher{
		client:      client,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		limiter:     rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RatePerMinute)), cfg.RatePerMinute),
		cb:          newBreaker[domain.Enrichment]("ip-api"),
		skipPrivate: cfg.SkipPrivate,
	}
}

func (p *IPAPIEnricher) Name() string {
	return "ip-api"
}

// Lookup resolves address.
//
// Returns:
//   - Enrichment and nil on success
//   - Empty enrichment and nil for private addresses when SkipPrivate is set
//   - Empty enrichment and an error on rate limiting, transport failure,
//     open circuit or a "fail" status from the service
func (p *IPAPIEnricher) Lookup(ctx context.Context, address string) (domain.Enrichment, error) {
	addr, err := netip.ParseAddr(address)
	if err != nil {
		return domain.NoEnrichment(), fmt.Errorf("%w: invalid address %q", ErrLookupFailed, address)
	}
	if p.skipPrivate && IsPrivate(addr) {
		return domain.NoEnrichment(), nil
	}
	if !p.limiter.Allow() {
		return domain.NoEnrichment(), ErrRateLimited
	}

	result, err := p.cb.Execute(func() (domain.Enrichment, error) {
		return p.query(ctx, addr)
	})
	if err != nil {
		return domain.NoEnrichment(), err
	}
	return result, nil
}

func (p *IPAPIEnricher) query(ctx context.Context, addr netip.Addr) (domain.Enrichment, error) {
	url := fmt.Sprintf("%s/%s?fields=%s", p.baseURL, addr.String(), ipAPIFields)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return domain.NoEnrichment(), fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return domain.NoEnrichment(), fmt.Errorf("failed to query ip-api.com: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.NoEnrichment(), fmt.Errorf("%w: ip-api.com returned status %d", ErrLookupFailed, resp.StatusCode)
	}

	var result ipAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return domain.NoEnrichment(), fmt.Errorf("failed to decode ip-api.com response: %w", err)
	}
	if result.Status != "success" {
		return domain.NoEnrichment(), fmt.Errorf("%w: %s", ErrLookupFailed, result.Message)
	}

	network := result.AS
	if network == "" {
		network = result.ISP
	}
	return domain.Enrichment{
		Country: domain.ClampField(result.Country),
		City:    domain.ClampField(result.City),
		Network: domain.ClampField(network),
	}, nil
}

// newBreaker opens after 5 consecutive failures, or a 60% failure rate over
// at least 10 requests, and retries after 30 seconds.
func newBreaker[T any](name string) *gobreaker.CircuitBreaker[T] {
	return gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= 5 {
				return true
			}
			if counts.Requests < 10 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state change")
		},
	})
}

// IsPrivate reports whether addr is non-routable (RFC 1918, loopback,
// link-local, unique local, unspecified).
func IsPrivate(addr netip.Addr) bool {
	addr = addr.Unmap()
	return addr.IsPrivate() || addr.IsLoopback() || addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() || addr.IsUnspecified()
}
