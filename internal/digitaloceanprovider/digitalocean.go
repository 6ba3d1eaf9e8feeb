package digitaloceanprovider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/digitalocean/godo"
	"go.uber.org/zap"
	"sigs.k8s.io/external-dns/endpoint"
	"sigs.k8s.io/external-dns/provider"
)

const (
	// Version is reported to the DigitalOcean API in the User-Agent header.
	Version = "1.0.0"

	defaultPageSize   = 50
	defaultMaxRetries = 5
	defaultRetryDelay = 500 * time.Millisecond
)

// DomainsAPI defines the subset of the DigitalOcean domains API the provider needs.
// *godo.Client.Domains satisfies it.
type DomainsAPI interface {
	List(ctx context.Context, opt *godo.ListOptions) ([]godo.Domain, *godo.Response, error)
	Get(ctx context.Context, name string) (*godo.Domain, *godo.Response, error)
	Create(ctx context.Context, req *godo.DomainCreateRequest) (*godo.Domain, *godo.Response, error)
	Records(ctx context.Context, domain string, opt *godo.ListOptions) ([]godo.DomainRecord, *godo.Response, error)
	CreateRecord(ctx context.Context, domain string, req *godo.DomainRecordEditRequest) (*godo.DomainRecord, *godo.Response, error)
	DeleteRecord(ctx context.Context, domain string, id int) (*godo.Response, error)
}

// DigitalOceanProvider is the implementation of the DigitalOcean DNS provider
type DigitalOceanProvider struct {
	provider.BaseProvider
	apiClient    DomainsAPI
	logger       *zap.Logger
	domainFilter endpoint.DomainFilter
	dryRun       bool
	ttl          int
	pageSize     int

	maxRetries int
	retryDelay time.Duration

	mu            sync.Mutex
	cachedDomains []godo.Domain
	zoneRecords   map[string][]godo.DomainRecord
}

// NewDigitalOceanProvider initializes a new DigitalOcean DNS provider.
func NewDigitalOceanProvider(logger *zap.Logger, providerConfig Config) (*DigitalOceanProvider, error) {
	if providerConfig.Token == "" {
		return nil, ErrMissingToken
	}

	client := godo.NewFromToken(providerConfig.Token)
	client.UserAgent = fmt.Sprintf("external-dns-digitalocean-webhook/%s", Version)

	if providerConfig.BaseURL != "" {
		baseURL, err := url.Parse(providerConfig.BaseURL)
		if err != nil {
			logger.Error("Invalid DigitalOcean base URL", zap.String("base_url", providerConfig.BaseURL), zap.Error(err))
			return nil, fmt.Errorf("invalid base URL: %w", err)
		}
		client.BaseURL = baseURL
	}

	pageSize := providerConfig.APIPageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	p := &DigitalOceanProvider{
		BaseProvider: provider.BaseProvider{},
		apiClient:    client.Domains,
		logger:       logger,
		domainFilter: providerConfig.DomainFilter,
		dryRun:       providerConfig.DryRun,
		ttl:          providerConfig.TTL,
		pageSize:     pageSize,
		maxRetries:   defaultMaxRetries,
		retryDelay:   defaultRetryDelay,
		zoneRecords:  make(map[string][]godo.DomainRecord),
	}

	return p, nil
}

// Zones retrieves all domains from the DigitalOcean API, applies filtering if
// configured and caches the result for future use.
func (p *DigitalOceanProvider) Zones(ctx context.Context) ([]godo.Domain, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.zonesLocked(ctx)
}

func (p *DigitalOceanProvider) zonesLocked(ctx context.Context) ([]godo.Domain, error) {
	if len(p.cachedDomains) > 0 {
		p.logger.Debug("Using cached domains", zap.Int("count", len(p.cachedDomains)))
		return p.cachedDomains, nil
	}

	p.logger.Debug("Retrieving domains from DigitalOcean API")

	var domains []godo.Domain
	opt := &godo.ListOptions{Page: 1, PerPage: p.pageSize}
	for {
		var page []godo.Domain
		var resp *godo.Response
		err := p.doWithRetry(ctx, func() (*godo.Response, error) {
			var err error
			page, resp, err = p.apiClient.List(ctx, opt)
			return resp, err
		})
		if err != nil {
			p.logger.Error("Failed to list domains", zap.Error(err))
			return nil, fmt.Errorf("failed to list domains: %w", err)
		}

		domains = append(domains, page...)

		// pages exists only when there is more than one page and last is
		// absent on the final page, mirroring the DigitalOcean links schema.
		if resp == nil || resp.Links == nil || resp.Links.IsLastPage() {
			break
		}
		opt.Page++
	}

	p.logger.Debug("Domains retrieved", zap.Int("count", len(domains)))

	if len(p.domainFilter.Filters) > 0 {
		var filtered []godo.Domain
		for _, domain := range domains {
			if p.domainFilter.Match(domain.Name) {
				filtered = append(filtered, domain)
			}
		}

		if len(filtered) == 0 {
			p.logger.Warn("No domains match the configured filters",
				zap.Strings("filters", p.domainFilter.Filters),
				zap.Int("available_domains", len(domains)))
		}

		p.logger.Debug("Filtered domains",
			zap.Int("filtered_count", len(filtered)),
			zap.Int("total_count", len(domains)))

		p.cachedDomains = filtered
		return filtered, nil
	}

	p.cachedDomains = domains
	return domains, nil
}

// ListZones returns the FQDNs of all managed domains, sorted.
func (p *DigitalOceanProvider) ListZones(ctx context.Context) ([]string, error) {
	domains, err := p.Zones(ctx)
	if err != nil {
		return nil, err
	}

	zones := make([]string, 0, len(domains))
	for _, d := range domains {
		zones = append(zones, ensureTrailingDot(d.Name))
	}
	sort.Strings(zones)
	return zones, nil
}

// zoneForName finds the managed zone a DNS name belongs to by longest suffix
// match. Returns ErrZoneNotFound when no zone matches.
func (p *DigitalOceanProvider) zoneForName(ctx context.Context, dnsName string) (string, error) {
	domains, err := p.Zones(ctx)
	if err != nil {
		return "", err
	}

	name := stripTrailingDot(dnsName)
	var zone string
	for _, d := range domains {
		if name == d.Name || strings.HasSuffix(name, "."+d.Name) {
			if len(d.Name) > len(zone) {
				zone = d.Name
			}
		}
	}
	if zone == "" {
		p.logger.Warn("No matching zone for record", zap.String("dnsName", dnsName))
		return "", ErrZoneNotFound
	}
	return zone, nil
}

// zoneRecordsFor returns the records of a zone, serving them from the cache
// when possible. A missing zone yields an empty result, not an error.
func (p *DigitalOceanProvider) zoneRecordsFor(ctx context.Context, zone string) ([]godo.DomainRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if records, ok := p.zoneRecords[zone]; ok {
		p.logger.Debug("Using cached zone records",
			zap.String("zone", zone),
			zap.Int("count", len(records)))
		return records, nil
	}

	records, err := p.fetchZoneRecords(ctx, zone)
	if err != nil {
		if errors.Is(err, ErrDomainNotFound) {
			return nil, nil
		}
		return nil, err
	}

	p.zoneRecords[zone] = records
	return records, nil
}

// fetchZoneRecords pages through all records of a zone.
func (p *DigitalOceanProvider) fetchZoneRecords(ctx context.Context, zone string) ([]godo.DomainRecord, error) {
	var records []godo.DomainRecord
	opt := &godo.ListOptions{Page: 1, PerPage: p.pageSize}
	for {
		var page []godo.DomainRecord
		var resp *godo.Response
		err := p.doWithRetry(ctx, func() (*godo.Response, error) {
			var err error
			page, resp, err = p.apiClient.Records(ctx, zone, opt)
			return resp, err
		})
		if err != nil {
			return nil, err
		}

		records = append(records, page...)

		if resp == nil || resp.Links == nil || resp.Links.IsLastPage() {
			break
		}
		opt.Page++
	}

	// DigitalOcean reports the zone apex as @, both as a record name and as
	// record data.
	for i := range records {
		if records[i].Data == "@" {
			records[i].Data = zone
		}
	}

	return records, nil
}

// invalidateZoneCache drops the cached records of a zone after changes were
// applied to it.
func (p *DigitalOceanProvider) invalidateZoneCache(zone string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.zoneRecords, zone)
}

// doWithRetry runs one API call, retrying when DigitalOcean rate-limits the
// request or answers with a transient server error.
func (p *DigitalOceanProvider) doWithRetry(ctx context.Context, fn func() (*godo.Response, error)) error {
	delay := p.retryDelay
	var lastErr error

	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		resp, err := fn()
		if err == nil {
			return nil
		}
		lastErr = apiError(resp, err)

		if !isRetryable(resp) {
			return lastErr
		}

		wait := retryAfter(resp, delay)
		p.logger.Warn("DigitalOcean API request throttled, retrying",
			zap.Int("attempt", attempt+1),
			zap.Int("status", statusCode(resp)),
			zap.Duration("wait", wait))

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= 2
	}

	return lastErr
}

// apiError translates an API failure into the package's sentinel errors.
func apiError(resp *godo.Response, err error) error {
	switch statusCode(resp) {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrDomainNotFound
	}
	return fmt.Errorf("%w: %v", ErrAPIRequestFailed, err)
}

func isRetryable(resp *godo.Response) bool {
	code := statusCode(resp)
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

// retryAfter picks the wait before the next attempt, preferring what the API
// tells us over our own backoff.
func retryAfter(resp *godo.Response, fallback time.Duration) time.Duration {
	if resp == nil {
		return fallback
	}

	if header := resp.Header.Get("Retry-After"); header != "" {
		if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}

	if !resp.Rate.Reset.IsZero() {
		if wait := time.Until(resp.Rate.Reset.Time); wait > 0 {
			return wait
		}
	}

	return fallback
}

func statusCode(resp *godo.Response) int {
	if resp == nil || resp.Response == nil {
		return 0
	}
	return resp.StatusCode
}
