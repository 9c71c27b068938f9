package stripe

import (
	"net/http"
	"strings"
	"time"

	stripego "github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
)

// NewClient builds a Stripe API client. An empty baseURL targets the live API.
func NewClient(apiKey, baseURL string) *client.API {
	cfg := &stripego.BackendConfig{
		HTTPClient:        &http.Client{Timeout: 30 * time.Second},
		MaxNetworkRetries: stripego.Int64(0),
		LeveledLogger:     &stripego.LeveledLogger{Level: stripego.LevelError},
	}
	if baseURL = strings.TrimSpace(baseURL); baseURL != "" {
		cfg.URL = stripego.String(baseURL)
	}

	backends := &stripego.Backends{
		API:     stripego.GetBackendWithConfig(stripego.APIBackend, cfg),
		Connect: stripego.GetBackendWithConfig(stripego.ConnectBackend, cfg),
		Uploads: stripego.GetBackendWithConfig(stripego.UploadsBackend, cfg),
	}
	return client.New(strings.TrimSpace(apiKey), backends)
}
