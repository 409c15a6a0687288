package tenant

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sortepremiada/fleet/internal/resilience"
)

// DefaultCacheTTL bounds how stale a cached tenant may be served. Tenant
// metadata changes rarely; quota changes take effect within this window.
const DefaultCacheTTL = 5 * time.Minute

// HTTPDirectoryConfig holds configuration for the HTTP tenant directory.
type HTTPDirectoryConfig struct {
	// BaseURL of the platform directory service, without trailing slash.
	BaseURL string

	// APIKey authenticates service-to-service calls. Optional.
	APIKey string

	// CacheTTL overrides DefaultCacheTTL when positive.
	CacheTTL time.Duration

	Logger zerolog.Logger
}

// HTTPDirectory resolves tenants from the platform directory service. Calls
// go through a circuit breaker with retries; successful lookups are cached
// per tenant for the configured TTL.
type HTTPDirectory struct {
	baseURL string
	apiKey  string
	client  *resilience.Client
	ttl     time.Duration
	logger  zerolog.Logger

	mu    sync.RWMutex
	cache map[string]cachedTenant
}

type cachedTenant struct {
	tenant    *Tenant
	fetchedAt time.Time
}

// NewHTTPDirectory creates a directory client against the platform service.
func NewHTTPDirectory(cfg HTTPDirectoryConfig) *HTTPDirectory {
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}

	return &HTTPDirectory{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  resilience.NewClient(resilience.DefaultClientConfig("tenant-directory")),
		ttl:     ttl,
		logger:  cfg.Logger,
		cache:   make(map[string]cachedTenant),
	}
}

// Get resolves a tenant, serving from cache when fresh.
func (d *HTTPDirectory) Get(ctx context.Context, id string) (*Tenant, error) {
	d.mu.RLock()
	entry, ok := d.cache[id]
	d.mu.RUnlock()
	if ok && time.Since(entry.fetchedAt) < d.ttl {
		return entry.tenant, nil
	}

	tn, err := d.fetch(ctx, id)
	if err != nil {
		// A stale entry beats failing the caller while the directory is down.
		if ok {
			d.logger.Warn().Err(err).Str("tenant_id", id).Msg("serving stale tenant, directory unavailable")
			return entry.tenant, nil
		}
		return nil, err
	}

	d.mu.Lock()
	d.cache[id] = cachedTenant{tenant: tn, fetchedAt: time.Now()}
	d.mu.Unlock()

	return tn, nil
}

func (d *HTTPDirectory) fetch(ctx context.Context, id string) (*Tenant, error) {
	url := fmt.Sprintf("%s/v1/tenants/%s", d.baseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating tenant request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if d.apiKey != "" {
		req.Header.Set("X-API-Key", d.apiKey)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling tenant directory: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrTenantNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("tenant directory returned status %d", resp.StatusCode)
	}

	var tn Tenant
	if err := json.NewDecoder(resp.Body).Decode(&tn); err != nil {
		return nil, fmt.Errorf("decoding tenant response: %w", err)
	}
	return &tn, nil
}

// Ensure HTTPDirectory implements Directory.
var _ Directory = (*HTTPDirectory)(nil)
