package errors

import "errors"

var (
	// ErrMissingToken is returned when the DigitalOcean API token is not provided
	ErrMissingToken = errors.New("digitalocean API token is required")

	// ErrZoneNotFound is returned when no managed zone matches a DNS name
	ErrZoneNotFound = errors.New("no matching zone found for record")

	// ErrDomainNotFound is returned when the DigitalOcean API reports a missing resource
	ErrDomainNotFound = errors.New("domain not found")

	// ErrUnauthorized is returned when the DigitalOcean API rejects the token
	ErrUnauthorized = errors.New("digitalocean API token was rejected")

	// ErrAPIRequestFailed is returned when a request to the DigitalOcean API fails
	ErrAPIRequestFailed = errors.New("API request to DigitalOcean failed")

	// ErrInvalidJSONFormat is returned when the JSON payload cannot be parsed
	ErrInvalidJSONFormat = errors.New("invalid JSON format in request")
)
