package osrm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/ibaiondo/fleetroute/internal/core/domain"
)

// Provider implements ports.DistanceProvider against an OSRM routing
// service. It is safe for concurrent use.
type Provider struct {
	session *http.Client
	baseURL string
	profile string
}

// New creates a provider for the given OSRM base URL (e.g.
// http://localhost:5000).
func New(baseURL string) *Provider {
	return &Provider{
		session: &http.Client{Timeout: 10 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
		profile: "driving",
	}
}

type osrmResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Distance float64 `json:"distance"` // meters
		Duration float64 `json:"duration"` // seconds
		Legs     []struct {
			Distance float64 `json:"distance"`
			Duration float64 `json:"duration"`
		} `json:"legs"`
	} `json:"routes"`
}

// ComputeRoute resolves road distance and duration over the ordered
// waypoints. OSRM's "NoRoute" answer maps to NoRouteFound; transport
// failures map to ProviderUnavailable.
func (p *Provider) ComputeRoute(ctx context.Context, waypoints []domain.GeoPoint) (*domain.RouteMetrics, error) {
	if len(waypoints) < 2 {
		return nil, domain.E(domain.CodeNoRouteFound, "need at least two waypoints, got %d", len(waypoints))
	}

	coords := make([]string, 0, len(waypoints))
	for _, wp := range waypoints {
		coords = append(coords, fmt.Sprintf("%f,%f", wp.Lon, wp.Lat))
	}
	url := fmt.Sprintf("%s/route/v1/%s/%s?overview=false&steps=false",
		p.baseURL, p.profile, strings.Join(coords, ";"))

	resp, err := p.doWithRetry(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		var he *httpStatusError
		if errors.As(err, &he) && he.Code == http.StatusBadRequest {
			return nil, domain.ErrNoRouteFound.WithCause(err)
		}
		return nil, domain.ErrProviderUnavailable.WithCause(err)
	}
	defer resp.Body.Close()

	var body osrmResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, domain.ErrProviderUnavailable.WithCause(fmt.Errorf("decode response: %w", err))
	}

	switch body.Code {
	case "Ok":
	case "NoRoute", "NoSegment":
		return nil, domain.E(domain.CodeNoRouteFound, "osrm: %s", body.Code)
	default:
		return nil, domain.E(domain.CodeProviderUnavailable, "osrm: unexpected code %q", body.Code)
	}
	if len(body.Routes) == 0 {
		return nil, domain.E(domain.CodeNoRouteFound, "osrm: empty route set")
	}

	best := body.Routes[0]
	m := &domain.RouteMetrics{
		TotalDistanceKm:  best.Distance / 1000.0,
		TotalDurationMin: best.Duration / 60.0,
	}
	for _, leg := range best.Legs {
		m.Legs = append(m.Legs, domain.RouteLeg{
			DistanceKm:  leg.Distance / 1000.0,
			DurationMin: leg.Duration / 60.0,
		})
	}
	return m, nil
}

type httpStatusError struct {
	Code int
	Body string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("code %d: %s", e.Code, e.Body)
}

func (p *Provider) do(req *http.Request) (*http.Response, error) {
	resp, err := p.session.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &httpStatusError{
			Code: resp.StatusCode,
			Body: strings.TrimSpace(string(b)),
		}
	}
	return resp, nil
}

// doWithRetry retries transient failures (network errors, 5xx responses)
// using exponential backoff while respecting context cancellation.
func (p *Provider) doWithRetry(ctx context.Context, makeReq func() (*http.Request, error)) (*http.Response, error) {
	const maxAttempts = 4
	backoff := 200 * time.Millisecond

	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		req, err := makeReq()
		if err != nil {
			return nil, fmt.Errorf("make request: %w", err)
		}

		resp, err := p.do(req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		retry := false
		var he *httpStatusError
		if errors.As(err, &he) {
			switch he.Code {
			case 429, 500, 502, 503, 504:
				retry = true
			}
		}

		var netErr net.Error
		if !retry && errors.As(err, &netErr) {
			retry = true
		}

		if !retry || attempt == maxAttempts {
			return nil, lastErr
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}

		backoff *= 2
	}

	return nil, lastErr
}
