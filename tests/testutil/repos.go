package testutil

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/meetprep/backend/internal/domain/company"
	"github.com/meetprep/backend/internal/domain/meeting"
	"github.com/meetprep/backend/internal/domain/person"
	"github.com/meetprep/backend/internal/domain/shared"
)

// MemoryPersonRepository is an in-memory person.Repository. Stored values are copies, so a
// handler only sees its changes after Upsert, as with a real store.
type MemoryPersonRepository struct {
	mu   sync.Mutex
	rows map[uuid.UUID]person.Person
}

// NewMemoryPersonRepository creates an empty repository
func NewMemoryPersonRepository() *MemoryPersonRepository {
	return &MemoryPersonRepository{rows: make(map[uuid.UUID]person.Person)}
}

func (r *MemoryPersonRepository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.rows[id]
	return ok, nil
}

func (r *MemoryPersonRepository) Get(ctx context.Context, id uuid.UUID) (*person.Person, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.rows[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &p, nil
}

func (r *MemoryPersonRepository) Upsert(ctx context.Context, p *person.Person) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[p.ID] = *p
	return nil
}

func (r *MemoryPersonRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[id]; !ok {
		return shared.ErrNotFound
	}
	delete(r.rows, id)
	return nil
}

func (r *MemoryPersonRepository) GetByEmail(ctx context.Context, tenantID, email string) (*person.Person, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.findLocked(tenantID, person.NormalizeEmail(email)); ok {
		return &p, nil
	}
	return nil, shared.ErrNotFound
}

func (r *MemoryPersonRepository) CreateIfAbsent(ctx context.Context, p *person.Person) (*person.Person, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if stored, ok := r.findLocked(p.TenantID, p.Email); ok {
		return &stored, false, nil
	}
	r.rows[p.ID] = *p
	return p, true, nil
}

func (r *MemoryPersonRepository) ListWaitingForCompany(ctx context.Context, domain string) ([]person.Person, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []person.Person
	for _, p := range r.rows {
		if p.CompanyDomain == domain && p.ProfileState == person.ProfileWaiting {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

// Len returns the number of stored persons
func (r *MemoryPersonRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

func (r *MemoryPersonRepository) findLocked(tenantID, email string) (person.Person, bool) {
	for _, p := range r.rows {
		if p.TenantID == tenantID && p.Email == email {
			return p, true
		}
	}
	return person.Person{}, false
}

// MemoryCompanyRepository is an in-memory company.Repository
type MemoryCompanyRepository struct {
	mu   sync.Mutex
	rows map[uuid.UUID]company.Company
}

// NewMemoryCompanyRepository creates an empty repository
func NewMemoryCompanyRepository() *MemoryCompanyRepository {
	return &MemoryCompanyRepository{rows: make(map[uuid.UUID]company.Company)}
}

func (r *MemoryCompanyRepository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.rows[id]
	return ok, nil
}

func (r *MemoryCompanyRepository) Get(ctx context.Context, id uuid.UUID) (*company.Company, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.rows[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &c, nil
}

// Upsert stores c, replacing any company with the same domain
func (r *MemoryCompanyRepository) Upsert(ctx context.Context, c *company.Company) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, existing := range r.rows {
		if existing.Domain == c.Domain && id != c.ID {
			delete(r.rows, id)
		}
	}
	r.rows[c.ID] = *c
	return nil
}

func (r *MemoryCompanyRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[id]; !ok {
		return shared.ErrNotFound
	}
	delete(r.rows, id)
	return nil
}

func (r *MemoryCompanyRepository) ExistsByDomain(ctx context.Context, domain string) (bool, error) {
	_, err := r.GetByDomain(ctx, domain)
	if err != nil {
		return false, nil
	}
	return true, nil
}

func (r *MemoryCompanyRepository) GetByDomain(ctx context.Context, domain string) (*company.Company, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := company.NormalizeDomain(domain)
	for _, c := range r.rows {
		if c.Domain == d {
			return &c, nil
		}
	}
	return nil, shared.ErrNotFound
}

// Len returns the number of stored companies
func (r *MemoryCompanyRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

// MemoryMeetingRepository is an in-memory meeting.Repository
type MemoryMeetingRepository struct {
	mu   sync.Mutex
	rows map[uuid.UUID]meeting.Meeting
}

// NewMemoryMeetingRepository creates an empty repository
func NewMemoryMeetingRepository() *MemoryMeetingRepository {
	return &MemoryMeetingRepository{rows: make(map[uuid.UUID]meeting.Meeting)}
}

func (r *MemoryMeetingRepository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.rows[id]
	return ok, nil
}

func (r *MemoryMeetingRepository) Get(ctx context.Context, id uuid.UUID) (*meeting.Meeting, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.rows[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &m, nil
}

func (r *MemoryMeetingRepository) Upsert(ctx context.Context, m *meeting.Meeting) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[m.ID] = *m
	return nil
}

func (r *MemoryMeetingRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[id]; !ok {
		return shared.ErrNotFound
	}
	delete(r.rows, id)
	return nil
}

func (r *MemoryMeetingRepository) GetByExternalID(ctx context.Context, tenantID, externalID string) (*meeting.Meeting, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.rows {
		if m.TenantID == tenantID && m.ExternalID == externalID {
			return &m, nil
		}
	}
	return nil, shared.ErrNotFound
}

// Len returns the number of stored meetings
func (r *MemoryMeetingRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

var (
	_ person.Repository  = (*MemoryPersonRepository)(nil)
	_ company.Repository = (*MemoryCompanyRepository)(nil)
	_ meeting.Repository = (*MemoryMeetingRepository)(nil)
)
