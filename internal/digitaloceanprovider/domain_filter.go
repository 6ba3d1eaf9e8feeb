package digitaloceanprovider

import "sigs.k8s.io/external-dns/endpoint"

// GetDomainFilter returns the domain filter for the provider
func (p *DigitalOceanProvider) GetDomainFilter() endpoint.DomainFilterInterface {
	return p.domainFilter
}
