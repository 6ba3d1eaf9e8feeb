package digitaloceanprovider

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/digitalocean/godo"
	"go.uber.org/zap"
	"sigs.k8s.io/external-dns/endpoint"
)

// recordTypeCAA is not among the endpoint package's constants but is fully
// supported by the DigitalOcean API.
const recordTypeCAA = "CAA"

// digitalOceanMinTTL is the lowest TTL the DigitalOcean API accepts.
const digitalOceanMinTTL = 30

// groupKey identifies a record set within a zone.
type groupKey struct {
	name       string
	recordType string
}

// Records returns all supported records of all managed zones as endpoints.
// Records sharing a name and type collapse into a single endpoint with
// multiple targets.
func (p *DigitalOceanProvider) Records(ctx context.Context) ([]*endpoint.Endpoint, error) {
	p.logger.Debug("Attempting to list zones (Records)")

	domains, err := p.Zones(ctx)
	if err != nil {
		p.logger.Error("Failed to list zones", zap.Error(err))
		return nil, err
	}

	var endpoints []*endpoint.Endpoint
	for _, domain := range domains {
		records, err := p.zoneRecordsFor(ctx, domain.Name)
		if err != nil {
			p.logger.Error("Failed to list DNS records",
				zap.String("zone", domain.Name),
				zap.Error(err))
			return nil, fmt.Errorf("failed listing records: %w", err)
		}

		zoneEndpoints, err := p.endpointsForZone(domain.Name, records)
		if err != nil {
			return nil, err
		}
		endpoints = append(endpoints, zoneEndpoints...)
	}

	p.logger.Info("Processed DNS records", zap.Int("endpoints", len(endpoints)))
	return endpoints, nil
}

// endpointsForZone groups a zone's records by name and type and translates
// each group into one endpoint.
func (p *DigitalOceanProvider) endpointsForZone(zone string, records []godo.DomainRecord) ([]*endpoint.Endpoint, error) {
	groups := make(map[groupKey][]godo.DomainRecord)
	var order []groupKey

	for _, r := range records {
		if !supportedRecordType(r.Type) {
			p.logger.Warn("Skipping unsupported record type",
				zap.String("zone", zone),
				zap.String("type", r.Type),
				zap.String("name", r.Name))
			continue
		}

		key := groupKey{name: r.Name, recordType: r.Type}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], r)
	}

	sort.Slice(order, func(i, j int) bool {
		if order[i].name != order[j].name {
			return order[i].name < order[j].name
		}
		return order[i].recordType < order[j].recordType
	})

	endpoints := make([]*endpoint.Endpoint, 0, len(order))
	for _, key := range order {
		ep, err := endpointFromRecords(zone, key, groups[key])
		if err != nil {
			return nil, err
		}
		p.logger.Debug("Added endpoint",
			zap.String("dnsName", ep.DNSName),
			zap.String("recordType", ep.RecordType),
			zap.Any("targets", ep.Targets))
		endpoints = append(endpoints, ep)
	}

	return endpoints, nil
}

// endpointFromRecords builds one endpoint from a record set, applying the
// per-type data translation.
func endpointFromRecords(zone string, key groupKey, records []godo.DomainRecord) (*endpoint.Endpoint, error) {
	targets := make([]string, 0, len(records))
	for _, r := range records {
		target, err := targetFromRecord(r)
		if err != nil {
			return nil, err
		}
		targets = append(targets, target)
	}

	// Built by hand instead of endpoint.NewEndpointWithTTL so the root SRV
	// target "." survives the constructor's trailing-dot trimming.
	return &endpoint.Endpoint{
		DNSName:    fqdnFromRelative(key.name, zone),
		RecordType: key.recordType,
		RecordTTL:  endpoint.TTL(records[0].TTL),
		Targets:    targets,
		Labels:     endpoint.NewLabels(),
	}, nil
}

// targetFromRecord renders a DigitalOcean record's data as an endpoint target.
func targetFromRecord(r godo.DomainRecord) (string, error) {
	switch r.Type {
	case endpoint.RecordTypeA, endpoint.RecordTypeAAAA:
		return r.Data, nil
	case endpoint.RecordTypeCNAME, endpoint.RecordTypeNS:
		return stripHostnameDot(r.Data), nil
	case endpoint.RecordTypeTXT:
		// DigitalOcean stores TXT values unescaped, the framework wants
		// semicolons escaped.
		return strings.ReplaceAll(r.Data, ";", "\\;"), nil
	case endpoint.RecordTypeMX:
		return fmt.Sprintf("%d %s", r.Priority, stripHostnameDot(r.Data)), nil
	case endpoint.RecordTypeSRV:
		return fmt.Sprintf("%d %d %d %s", r.Priority, r.Weight, r.Port, stripHostnameDot(r.Data)), nil
	case recordTypeCAA:
		return fmt.Sprintf("%d %s %s", r.Flags, r.Tag, r.Data), nil
	}
	return "", fmt.Errorf("unsupported record type %q", r.Type)
}

// recordRequestsForEndpoint translates one endpoint into the DigitalOcean
// record create requests needed to represent it, one per target.
func (p *DigitalOceanProvider) recordRequestsForEndpoint(zone string, ep *endpoint.Endpoint) ([]*godo.DomainRecordEditRequest, error) {
	name := relativeName(ep.DNSName, zone)

	ttl := p.ttl
	if ep.RecordTTL > 0 {
		ttl = int(ep.RecordTTL)
	}
	if ttl < digitalOceanMinTTL {
		ttl = digitalOceanMinTTL
	}

	requests := make([]*godo.DomainRecordEditRequest, 0, len(ep.Targets))
	for _, target := range ep.Targets {
		req := &godo.DomainRecordEditRequest{
			Type: ep.RecordType,
			Name: name,
			TTL:  ttl,
		}

		switch ep.RecordType {
		case endpoint.RecordTypeA, endpoint.RecordTypeAAAA:
			req.Data = target
		case endpoint.RecordTypeCNAME, endpoint.RecordTypeNS:
			// The DigitalOcean API resolves dotless hostname data relative
			// to the zone, so CNAME/NS/MX/SRV data needs the trailing dot.
			req.Data = ensureTrailingDot(target)
		case endpoint.RecordTypeTXT:
			// DigitalOcean doesn't want things escaped in values so we
			// strip them here and add them when going the other way.
			req.Data = formatTXTValue(strings.ReplaceAll(target, "\\;", ";"))
		case endpoint.RecordTypeMX:
			priority, exchange, err := parseMXTarget(target)
			if err != nil {
				return nil, err
			}
			req.Priority = priority
			req.Data = ensureTrailingDot(exchange)
		case endpoint.RecordTypeSRV:
			priority, weight, port, srvTarget, err := parseSRVTarget(target)
			if err != nil {
				return nil, err
			}
			req.Priority = priority
			req.Weight = weight
			req.Port = port
			req.Data = ensureTrailingDot(srvTarget)
		case recordTypeCAA:
			flags, tag, value, err := parseCAATarget(target)
			if err != nil {
				return nil, err
			}
			req.Flags = flags
			req.Tag = tag
			req.Data = value
		default:
			return nil, fmt.Errorf("unsupported record type %q", ep.RecordType)
		}

		requests = append(requests, req)
	}

	return requests, nil
}

// AdjustEndpoints drops endpoints DigitalOcean cannot represent and clamps
// TTLs to the API's minimum.
func (p *DigitalOceanProvider) AdjustEndpoints(endpoints []*endpoint.Endpoint) ([]*endpoint.Endpoint, error) {
	adjusted := make([]*endpoint.Endpoint, 0, len(endpoints))
	for _, ep := range endpoints {
		if !supportedRecordType(ep.RecordType) {
			p.logger.Warn("Dropping endpoint with unsupported record type",
				zap.String("dnsName", ep.DNSName),
				zap.String("recordType", ep.RecordType))
			continue
		}

		if ep.RecordTTL > 0 && ep.RecordTTL < digitalOceanMinTTL {
			ep.RecordTTL = digitalOceanMinTTL
		}

		adjusted = append(adjusted, ep)
	}
	return adjusted, nil
}

// parseMXTarget splits "<priority> <exchange>".
func parseMXTarget(target string) (int, string, error) {
	fields := strings.Fields(target)
	if len(fields) != 2 {
		return 0, "", fmt.Errorf("invalid MX target %q", target)
	}
	priority, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, "", fmt.Errorf("invalid MX priority in %q: %w", target, err)
	}
	return priority, fields[1], nil
}

// parseSRVTarget splits "<priority> <weight> <port> <target>".
func parseSRVTarget(target string) (int, int, int, string, error) {
	fields := strings.Fields(target)
	if len(fields) != 4 {
		return 0, 0, 0, "", fmt.Errorf("invalid SRV target %q", target)
	}
	var parts [3]int
	for i := 0; i < 3; i++ {
		v, err := strconv.Atoi(fields[i])
		if err != nil {
			return 0, 0, 0, "", fmt.Errorf("invalid SRV target %q: %w", target, err)
		}
		parts[i] = v
	}
	return parts[0], parts[1], parts[2], fields[3], nil
}

// parseCAATarget splits "<flags> <tag> <value>".
func parseCAATarget(target string) (int, string, string, error) {
	fields := strings.SplitN(target, " ", 3)
	if len(fields) != 3 {
		return 0, "", "", fmt.Errorf("invalid CAA target %q", target)
	}
	flags, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, "", "", fmt.Errorf("invalid CAA flags in %q: %w", target, err)
	}
	value := strings.Trim(fields[2], "\"")
	return flags, fields[1], value, nil
}

// supportedRecordType returns true if DigitalOcean can hold the record type.
func supportedRecordType(recordType string) bool {
	switch recordType {
	case endpoint.RecordTypeA, endpoint.RecordTypeAAAA, endpoint.RecordTypeCNAME,
		endpoint.RecordTypeMX, endpoint.RecordTypeTXT, endpoint.RecordTypeNS,
		endpoint.RecordTypeSRV, recordTypeCAA:
		return true
	}
	return false
}

// formatTXTValue sanitizes a TXT record value by removing quotes, newlines, etc.
func formatTXTValue(value string) string {
	value = strings.Trim(value, "\"'")
	value = strings.ReplaceAll(value, "\"", "")
	value = strings.ReplaceAll(value, "\n", " ")
	value = strings.ReplaceAll(value, "\r", " ")
	value = strings.ReplaceAll(value, "\t", " ")
	return value
}

// fqdnFromRelative joins a DigitalOcean relative record name with its zone.
// The apex is reported as @.
func fqdnFromRelative(name, zone string) string {
	if name == "@" || name == "" {
		return zone
	}
	return name + "." + zone
}

// relativeName converts a DNS name into the zone-relative form DigitalOcean
// expects, using @ for the apex.
func relativeName(dnsName, zone string) string {
	name := stripTrailingDot(dnsName)
	if name == zone {
		return "@"
	}
	return strings.TrimSuffix(name, "."+zone)
}

// ensureTrailingDot ensures the given name ends with a dot.
func ensureTrailingDot(name string) string {
	if name == "" {
		return name
	}
	if !strings.HasSuffix(name, ".") {
		return name + "."
	}
	return name
}

// stripTrailingDot removes any final dot in a DNS name.
func stripTrailingDot(name string) string {
	return strings.TrimSuffix(name, ".")
}

// stripHostnameDot converts hostname record data into the dotless form the
// framework uses. The root name "." stays as it is.
func stripHostnameDot(name string) string {
	if name == "." {
		return name
	}
	return stripTrailingDot(name)
}
