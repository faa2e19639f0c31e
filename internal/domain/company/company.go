// Package company holds the company aggregate. Companies are global: the same domain is
// enriched once and shared by every tenant that meets it.
package company

import (
	"net/url"
	"strings"
	"time"

	"github.com/meetprep/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// NewsStaleAfter is how long fetched news stay fresh
const NewsStaleAfter = 30 * 24 * time.Hour

// EnrichmentStatus is the state of the company enrichment
type EnrichmentStatus string

const (
	EnrichmentPending  EnrichmentStatus = "PENDING"
	EnrichmentEnriched EnrichmentStatus = "ENRICHED"
	EnrichmentFailed   EnrichmentStatus = "FAILED"
)

// NewsItem is one article about the company
type NewsItem struct {
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Source      string    `json:"source,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

// Financials are the monetary facts providers report about a company
type Financials struct {
	Revenue      decimal.NullDecimal
	FundingTotal decimal.NullDecimal
	Currency     string
}

// Company is the enriched company aggregate keyed by its web domain
type Company struct {
	shared.BaseEntity
	Domain     string
	Name       string
	Status     EnrichmentStatus
	Provider   string
	Data       shared.Payload
	Financials Financials
	EnrichedAt *time.Time

	News          []NewsItem
	NewsFetchedAt *time.Time
}

// New creates a pending company for domain
func New(domain string) (*Company, error) {
	d := NormalizeDomain(domain)
	if d == "" || !strings.Contains(d, ".") {
		return nil, shared.ErrInvalidInput
	}
	return &Company{
		BaseEntity: shared.NewBaseEntity(),
		Domain:     d,
		Status:     EnrichmentPending,
	}, nil
}

// IsEnriched reports whether a provider already delivered data for the company
func (c *Company) IsEnriched() bool {
	return c != nil && c.Status == EnrichmentEnriched
}

// Enrich stores the provider data
func (c *Company) Enrich(res *shared.ProviderResult) {
	now := time.Now().UTC()
	c.Provider = res.Provider
	c.Data = res.Data.Clone()
	c.Financials = ParseFinancials(res.Data)
	if name := res.Data.String("name"); name != "" {
		c.Name = name
	}
	c.Status = EnrichmentEnriched
	c.EnrichedAt = &now
	c.Touch()
}

// MarkFailed records that no provider yielded data
func (c *Company) MarkFailed() {
	c.Status = EnrichmentFailed
	c.Touch()
}

// NewsIsStale reports whether news must be fetched again
func (c *Company) NewsIsStale(now time.Time) bool {
	return c.NewsOlderThan(now, NewsStaleAfter)
}

// NewsOlderThan reports whether the last news fetch is at least ttl old. A non-positive
// ttl falls back to the default window.
func (c *Company) NewsOlderThan(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = NewsStaleAfter
	}
	if c.NewsFetchedAt == nil {
		return true
	}
	return now.Sub(*c.NewsFetchedAt) >= ttl
}

// UpdateNews replaces the news list
func (c *Company) UpdateNews(items []NewsItem, at time.Time) {
	at = at.UTC()
	c.News = items
	c.NewsFetchedAt = &at
	c.Touch()
}

// Summary is the document handed to profile and goal generators
func (c *Company) Summary() shared.Payload {
	out := shared.Payload{"domain": c.Domain, "name": c.Name}
	if c.Data != nil {
		out["data"] = map[string]any(c.Data.Clone())
	}
	if c.Financials.Revenue.Valid {
		out["revenue"] = c.Financials.Revenue.Decimal.String()
	}
	if c.Financials.FundingTotal.Valid {
		out["funding_total"] = c.Financials.FundingTotal.Decimal.String()
	}
	if c.Financials.Currency != "" {
		out["currency"] = c.Financials.Currency
	}
	if len(c.News) > 0 {
		headlines := make([]any, 0, len(c.News))
		for _, n := range c.News {
			headlines = append(headlines, n.Title)
		}
		out["headlines"] = headlines
	}
	return out
}

// NormalizeDomain reduces a URL, host or e-mail domain to a bare lower-case host
func NormalizeDomain(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return ""
	}
	if at := strings.LastIndex(s, "@"); at >= 0 {
		s = s[at+1:]
	}
	if strings.Contains(s, "://") {
		if u, err := url.Parse(s); err == nil {
			s = u.Host
		}
	}
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	if i := strings.LastIndex(s, ":"); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimPrefix(s, "www.")
	return strings.TrimSuffix(s, ".")
}

// ParseFinancials reads revenue and funding from a provider document. Values may be JSON
// numbers or decimal strings; anything unparsable is left null.
func ParseFinancials(p shared.Payload) Financials {
	return Financials{
		Revenue:      decimalField(p, "revenue"),
		FundingTotal: decimalField(p, "funding_total"),
		Currency:     strings.ToUpper(p.String("currency")),
	}
}

func decimalField(p shared.Payload, key string) decimal.NullDecimal {
	switch v := p[key].(type) {
	case string:
		d, err := decimal.NewFromString(strings.ReplaceAll(v, ",", ""))
		if err != nil {
			return decimal.NullDecimal{}
		}
		return decimal.NewNullDecimal(d)
	case float64:
		return decimal.NewNullDecimal(decimal.NewFromFloat(v))
	case int:
		return decimal.NewNullDecimal(decimal.NewFromInt(int64(v)))
	case int64:
		return decimal.NewNullDecimal(decimal.NewFromInt(v))
	}
	return decimal.NullDecimal{}
}

// NewsFromPayload decodes the "articles" list of a news provider document
func NewsFromPayload(p shared.Payload) []NewsItem {
	raw, _ := p["articles"].([]any)
	items := make([]NewsItem, 0, len(raw))
	for _, r := range raw {
		m, ok := r.(map[string]any)
		if !ok {
			continue
		}
		doc := shared.Payload(m)
		item := NewsItem{Title: doc.String("title"), URL: doc.String("url"), Source: doc.String("source")}
		if ts := doc.String("published_at"); ts != "" {
			if t, err := time.Parse(time.RFC3339, ts); err == nil {
				item.PublishedAt = t.UTC()
			}
		}
		if item.Title == "" && item.URL == "" {
			continue
		}
		items = append(items, item)
	}
	return items
}
