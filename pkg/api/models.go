package api

import (
	"go.uber.org/zap"
	"sigs.k8s.io/external-dns/provider"
)

const (
	MediaTypeFormatAndVersion = "application/external.dns.webhook+json;version=1"
	contentTypeHeader         = "Content-Type"
	varyHeader                = "Vary"
	logFieldError             = "err"
)

type Message struct {
	Message string `json:"message"`
}

// webhook holds the provider the webhook routes are served for
type webhook struct {
	provider provider.Provider
	logger   *zap.Logger
}
