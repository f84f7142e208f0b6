// Package di provides dependency injection factories for creating application components.
package di

import (
	"breeze_backend/internal/platform/externalapi/breeze"
	infrahttp "breeze_backend/internal/platform/http"
	"breeze_backend/internal/shared/markethours"
)

// NewFeedFactory creates a fully configured Breeze feed factory with an HTTP
// client tuned for upstream calls.
func NewFeedFactory(window markethours.Window) *breeze.Factory {
	cfg := breeze.LoadConfig()
	httpClient := infrahttp.NewHTTPClient(cfg.Timeout)
	return breeze.NewFactory(cfg, httpClient, window.Loc)
}
