package digitaloceanprovider

import (
	"sigs.k8s.io/external-dns/endpoint"
)

// Config is used to configure the creation of the DigitalOceanProvider.
type Config struct {
	Token        string
	BaseURL      string
	DomainFilter endpoint.DomainFilter
	DryRun       bool
	TTL          int
	APIPageSize  int
}
