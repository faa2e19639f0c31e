package provider

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/meetprep/backend/internal/domain/shared"
)

// HTTPEnrichmentProvider looks identifiers up with GET {base_url}/{identifier}. A "data"
// envelope in the answer is unwrapped.
type HTTPEnrichmentProvider struct {
	client *Client
	now    func() time.Time
}

// NewHTTPEnrichmentProvider creates an enrichment provider on top of client
func NewHTTPEnrichmentProvider(client *Client) *HTTPEnrichmentProvider {
	return &HTTPEnrichmentProvider{client: client, now: time.Now}
}

// Name returns the provider name
func (p *HTTPEnrichmentProvider) Name() string {
	return p.client.Name()
}

// Fetch returns what the provider knows about identifier
func (p *HTTPEnrichmentProvider) Fetch(ctx context.Context, identifier string) (*shared.ProviderResult, error) {
	doc, err := p.client.Do(ctx, http.MethodGet, "/"+url.PathEscape(identifier), identifier, nil)
	if err != nil {
		return nil, err
	}
	if inner := doc.Object("data"); len(inner) > 0 {
		doc = inner
	}
	return &shared.ProviderResult{
		Provider:  p.client.Name(),
		Data:      doc,
		FetchedAt: p.now().UTC(),
	}, nil
}

var _ shared.EnrichmentProvider = (*HTTPEnrichmentProvider)(nil)
