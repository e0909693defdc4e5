package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/estateway/gatekeeper/internal/models"
)

// Resolver annotates an IP address with a best-effort location.
// Lookups are advisory: a failed or slow lookup must never delay or
// block a login decision, so implementations return a placeholder
// instead of an error.
type Resolver interface {
	Lookup(ctx context.Context, ip string) models.Geolocation
}

// localPlaceholder is returned for private, loopback, and unresolvable
// addresses.
var localPlaceholder = models.Geolocation{Country: "Local", City: "Local"}

// HTTPResolver looks up locations against an ip-api style JSON
// endpoint (GET {base}/{ip} -> {"country":..., "regionName":..., "city":...}).
type HTTPResolver struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewHTTPResolver creates a resolver against the given base URL.
func NewHTTPResolver(baseURL string, logger *slog.Logger) *HTTPResolver {
	return &HTTPResolver{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 2 * time.Second},
		logger:  logger,
	}
}

type lookupResponse struct {
	Country    string `json:"country"`
	RegionName string `json:"regionName"`
	City       string `json:"city"`
}

// Lookup resolves the IP, degrading to a placeholder on any failure.
func (r *HTTPResolver) Lookup(ctx context.Context, ip string) models.Geolocation {
	if isPrivateOrLoopback(ip) {
		return localPlaceholder
	}

	reqURL := fmt.Sprintf("%s/%s", r.baseURL, url.PathEscape(ip))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return localPlaceholder
	}

	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Debug("geolocation lookup failed", slog.String("ip", ip), slog.Any("error", err))
		return localPlaceholder
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		r.logger.Debug("geolocation lookup non-200", slog.String("ip", ip), slog.Int("status", resp.StatusCode))
		return localPlaceholder
	}

	var body lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return localPlaceholder
	}

	return models.Geolocation{
		Country: body.Country,
		Region:  body.RegionName,
		City:    body.City,
	}
}

// NoopResolver returns the placeholder for every lookup. Used when no
// lookup endpoint is configured.
type NoopResolver struct{}

func (NoopResolver) Lookup(ctx context.Context, ip string) models.Geolocation {
	return localPlaceholder
}

func isPrivateOrLoopback(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return true
	}
	return parsed.IsLoopback() || parsed.IsPrivate() || parsed.IsUnspecified() || parsed.IsLinkLocalUnicast()
}
