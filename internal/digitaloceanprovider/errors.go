package digitaloceanprovider

import (
	"github.com/oceandns/external-dns-digitalocean-webhook/pkg/errors"
)

var (
	// ErrMissingToken is returned when the DigitalOcean API token is not provided
	ErrMissingToken = errors.ErrMissingToken

	// ErrZoneNotFound is returned when no managed zone matches a record's DNS name
	ErrZoneNotFound = errors.ErrZoneNotFound

	// ErrDomainNotFound is returned when the DigitalOcean API reports a missing resource
	ErrDomainNotFound = errors.ErrDomainNotFound

	// ErrUnauthorized is returned when the DigitalOcean API rejects the token
	ErrUnauthorized = errors.ErrUnauthorized

	// ErrAPIRequestFailed is returned when a request to the DigitalOcean API fails
	ErrAPIRequestFailed = errors.ErrAPIRequestFailed
)
