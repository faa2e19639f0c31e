package integration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/meetprep/backend/internal/application/orchestration"
	"github.com/meetprep/backend/internal/domain/meeting"
	"github.com/meetprep/backend/internal/domain/person"
	"github.com/meetprep/backend/internal/domain/shared"
	"github.com/meetprep/backend/internal/domain/topic"
	"github.com/meetprep/backend/internal/infrastructure/event"
	"github.com/meetprep/backend/internal/infrastructure/persistence"
	"github.com/meetprep/backend/tests/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// TestPostgres_MeetingFlow runs every saga on an in-memory bus with all state in PostgreSQL
func TestPostgres_MeetingFlow(t *testing.T) {
	tdb := NewTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	persons := persistence.NewGormPersonRepository(tdb.DB)
	meetings := persistence.NewGormMeetingRepository(tdb.DB)
	ledger := persistence.NewGormStatusLedger(tdb.DB, zap.NewNop())
	notifier := &testutil.RecordingNotifier{}

	primary := testutil.NewStubProvider("pdl", now).
		Returns("ada@globex.io", shared.Payload{"title": "CTO"})
	firmo := testutil.NewStubProvider("firmo", now).
		Returns("globex.io", shared.Payload{"name": "Globex", "employees": 900})
	news := testutil.NewStubProvider("newsapi", now)
	generator := &testutil.StubGoalGenerator{}

	transport := event.NewMemoryTransport(4)
	publisher := event.NewPublisher(transport, ledger, zap.NewNop())

	handlers := orchestration.Handlers(orchestration.Dependencies{
		Persons:   persons,
		Companies: persistence.NewGormCompanyRepository(tdb.DB),
		Meetings:  meetings,
		Joins:     persistence.NewGormJoinStore(tdb.DB),
		Ledger:    ledger,
		Publisher: publisher,
		Notifier:  notifier,
		Providers: orchestration.Providers{
			PersonPrimary:   primary,
			PersonSecondary: testutil.NewStubProvider("clearbit", now),
			Company:         []shared.EnrichmentProvider{firmo},
			CompanyNews:     news,
			Profile:         &testutil.StubProfileBuilder{},
			Goals:           generator,
		},
		Logger: zap.NewNop(),
	})
	sagas := make([]event.SagaHandler, len(handlers))
	for i, h := range handlers {
		sagas[i] = h
	}
	workers, err := event.NewSagaWorkers(transport, persistence.NewGormCheckpointStore(tdb.DB), sagas, event.GroupConfig{}, zap.NewNop())
	require.NoError(t, err)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- event.NewRunner(zap.NewNop(), time.Second, workers...).Run(runCtx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	require.NoError(t, publisher.Publish(ctx, topic.NewMeeting, shared.Payload{
		"external_id":   "cal-7",
		"subject":       "Pilot scoping",
		"start":         "2026-09-01T09:00:00Z",
		"end":           "2026-09-01T10:00:00Z",
		"tenant_domain": "acme.io",
		"participants": []any{
			map[string]any{"email": "me@acme.io", "self": true},
			map[string]any{"email": "ada@globex.io", "name": "Ada"},
		},
	}, shared.WithTenant("acme")))

	var m *meeting.Meeting
	require.Eventually(t, func() bool {
		m, err = meetings.GetByExternalID(ctx, "acme", "cal-7")
		return err == nil && m.GoalsState == meeting.GoalsGenerated
	}, 15*time.Second, 50*time.Millisecond)

	require.Eventually(t, func() bool {
		p, err := persons.GetByEmail(ctx, "acme", "ada@globex.io")
		return err == nil && p.ProfileState == person.ProfileBuilt
	}, 15*time.Second, 50*time.Millisecond)

	assert.Equal(t, 1, generator.Calls())
	rec, err := ledger.Get(ctx, m.ID.String(), "acme", topic.GenerateMeetingGoals)
	require.NoError(t, err)
	assert.Equal(t, shared.StatusCompleted, rec.State)

	records, err := ledger.ListByObject(ctx, "ada@globex.io", "acme")
	require.NoError(t, err)
	assert.NotEmpty(t, records)

	_, err = persons.GetByEmail(ctx, "acme", "me@acme.io")
	assert.True(t, errors.Is(err, shared.ErrNotFound), "the tenant's own participant is not enriched")

	var committed int64
	require.NoError(t, tdb.DB.Table("bus_checkpoints").Count(&committed).Error)
	assert.Positive(t, committed)
	assert.Empty(t, notifier.Sent())
}
