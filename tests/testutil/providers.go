package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/meetprep/backend/internal/domain/shared"
)

// StubProvider is a scripted shared.EnrichmentProvider. Identifiers without a scripted
// result return shared.ErrProviderNotFound.
type StubProvider struct {
	name string

	mu      sync.Mutex
	results map[string]shared.Payload
	errs    map[string]error
	at      time.Time
	calls   []string
}

// NewStubProvider creates a provider answering at the given fetch time
func NewStubProvider(name string, at time.Time) *StubProvider {
	return &StubProvider{
		name:    name,
		results: make(map[string]shared.Payload),
		errs:    make(map[string]error),
		at:      at,
	}
}

// Name returns the provider name
func (p *StubProvider) Name() string { return p.name }

// Returns scripts data for identifier
func (p *StubProvider) Returns(identifier string, data shared.Payload) *StubProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.results[identifier] = data
	delete(p.errs, identifier)
	return p
}

// Fails scripts err for identifier
func (p *StubProvider) Fails(identifier string, err error) *StubProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errs[identifier] = err
	delete(p.results, identifier)
	return p
}

// Fetch implements shared.EnrichmentProvider
func (p *StubProvider) Fetch(ctx context.Context, identifier string) (*shared.ProviderResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, identifier)
	if err, ok := p.errs[identifier]; ok {
		return nil, &shared.ProviderError{Provider: p.name, Identifier: identifier, Err: err}
	}
	data, ok := p.results[identifier]
	if !ok {
		return nil, &shared.ProviderError{Provider: p.name, Identifier: identifier, Err: shared.ErrProviderNotFound}
	}
	return &shared.ProviderResult{Provider: p.name, Data: data.Clone(), FetchedAt: p.at}, nil
}

// Calls returns the identifiers fetched so far
func (p *StubProvider) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

// StubProfileBuilder is a shared.ProfileBuilder echoing its inputs
type StubProfileBuilder struct {
	Err error

	mu    sync.Mutex
	calls int
}

// BuildProfile implements shared.ProfileBuilder
func (b *StubProfileBuilder) BuildProfile(ctx context.Context, person, company shared.Payload) (shared.Payload, error) {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()
	if b.Err != nil {
		return nil, b.Err
	}
	return shared.Payload{"person": map[string]any(person.Clone()), "company": map[string]any(company.Clone())}, nil
}

// Calls returns how many profiles were requested
func (b *StubProfileBuilder) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

// StubGoalGenerator is a shared.GoalGenerator returning a fixed goal list
type StubGoalGenerator struct {
	Err error

	mu           sync.Mutex
	calls        int
	participants int
	companies    int
}

// GenerateGoals implements shared.GoalGenerator
func (g *StubGoalGenerator) GenerateGoals(ctx context.Context, meeting shared.Payload, participants, companies []shared.Payload) (shared.Payload, error) {
	g.mu.Lock()
	g.calls++
	g.participants = len(participants)
	g.companies = len(companies)
	g.mu.Unlock()
	if g.Err != nil {
		return nil, g.Err
	}
	return shared.Payload{"goals": []any{"qualify budget", "agree next step"}}, nil
}

// Calls returns how many goal lists were requested
func (g *StubGoalGenerator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// LastInputs returns how many participants and companies the last call received
func (g *StubGoalGenerator) LastInputs() (participants, companies int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.participants, g.companies
}

// RecordingNotifier is a shared.Notifier keeping every notification
type RecordingNotifier struct {
	Err error

	mu   sync.Mutex
	sent []shared.Notification
}

// Notify implements shared.Notifier
func (n *RecordingNotifier) Notify(ctx context.Context, msg shared.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return n.Err
}

// Sent returns the notifications received so far
func (n *RecordingNotifier) Sent() []shared.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]shared.Notification(nil), n.sent...)
}

var (
	_ shared.EnrichmentProvider = (*StubProvider)(nil)
	_ shared.ProfileBuilder     = (*StubProfileBuilder)(nil)
	_ shared.GoalGenerator      = (*StubGoalGenerator)(nil)
	_ shared.Notifier           = (*RecordingNotifier)(nil)
)
