package orchestration

import (
	"testing"

	"github.com/meetprep/backend/internal/domain/topic"
	"github.com/meetprep/backend/internal/infrastructure/cache"
	"github.com/meetprep/backend/internal/infrastructure/persistence"
	"github.com/meetprep/backend/tests/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDependencies() Dependencies {
	return Dependencies{
		Persons:   testutil.NewMemoryPersonRepository(),
		Companies: testutil.NewMemoryCompanyRepository(),
		Meetings:  testutil.NewMemoryMeetingRepository(),
		Joins:     cache.NewInMemoryJoinStore(),
		Ledger:    persistence.NewMemoryStatusLedger(),
		Publisher: testutil.NewRecordingPublisher(),
		Notifier:  &testutil.RecordingNotifier{},
	}
}

func TestGraph_HasNoDeadEnds(t *testing.T) {
	g := Graph(Handlers(testDependencies()))

	require.NoError(t, g.Validate())
}

func TestGraph_EveryTopicIsReachable(t *testing.T) {
	g := Graph(Handlers(testDependencies()))

	for _, tp := range topic.All() {
		if tp == topic.NewMeeting {
			assert.Empty(t, g.Emitters(tp), "new-meeting only enters from outside")
			continue
		}
		assert.NotEmpty(t, g.Emitters(tp), "%s is never emitted", tp)
	}
}

func TestGraph_FailuresReachTheNotifier(t *testing.T) {
	g := Graph(Handlers(testDependencies()))

	for _, tp := range topic.Failures() {
		assert.Contains(t, g.Subscribers(tp), "failure-notification", tp)
	}
}

func TestHandlers_NamesAreUnique(t *testing.T) {
	seen := map[string]bool{}
	for _, h := range Handlers(testDependencies()) {
		assert.False(t, seen[h.Name()], "duplicate handler %s", h.Name())
		seen[h.Name()] = true
		assert.NotEmpty(t, h.Subscribes().Topics(), "%s subscribes to nothing", h.Name())
	}
}

func TestTriggers(t *testing.T) {
	triggers := Triggers(Handlers(testDependencies()))

	assert.Contains(t, triggers, topic.NewMeeting)
	assert.Contains(t, triggers, topic.NewPerson)
	assert.Contains(t, triggers, topic.NewCompany)
	assert.Contains(t, triggers, topic.RefreshCompanyNews)
	assert.NotContains(t, triggers, topic.CompanyEnriched)
	assert.NotContains(t, triggers, topic.MeetingIngested)
}
