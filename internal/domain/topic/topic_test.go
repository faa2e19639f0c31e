package topic

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Topic
		wantErr bool
	}{
		{name: "known topic", input: "new-person", want: NewPerson},
		{name: "surrounding spaces", input: "  company-enriched ", want: CompanyEnriched},
		{name: "unknown topic", input: "new-invoice", wantErr: true},
		{name: "empty", input: "", wantErr: true},
		{name: "case sensitive", input: "NEW-PERSON", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAll(t *testing.T) {
	all := All()
	assert.Len(t, all, 24)
	for i := 1; i < len(all); i++ {
		assert.Less(t, string(all[i-1]), string(all[i]))
	}
	for _, tp := range all {
		assert.True(t, tp.IsValid(), tp)
		assert.NotEmpty(t, tp.Kind(), tp)
	}
}

func TestKinds(t *testing.T) {
	assert.True(t, PersonEnrichmentFailed.IsFailure())
	assert.True(t, PersonEnrichmentFailed.IsTerminal())
	assert.True(t, CompanyNewsUpToDate.IsTerminal())
	assert.False(t, CompanyNewsUpToDate.IsFailure())
	assert.False(t, PersonPrimaryFailed.IsFailure(), "intermediate fact, not terminal failure")
	assert.False(t, EnrichPersonPrimary.IsTerminal())
	assert.Equal(t, KindDiscovery, NewMeeting.Kind())
	assert.Equal(t, Kind(""), Topic("bogus").Kind())

	failures := Failures()
	assert.ElementsMatch(t, []Topic{
		PersonEnrichmentFailed, PersonProfileFailed, CompanyEnrichmentFailed,
		CompanyNewsFailed, MeetingGoalsFailed,
	}, failures)
}

func TestSet(t *testing.T) {
	s := NewSet(NewPerson, NewCompany)
	assert.True(t, s.Contains(NewPerson))
	assert.False(t, s.Contains(NewMeeting))
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, []Topic{NewCompany, NewPerson}, s.Topics())

	u := s.Union(NewSet(NewMeeting))
	assert.Equal(t, 3, u.Len())
	assert.False(t, s.Contains(NewMeeting), "union must not mutate receiver")

	var zero Set
	assert.False(t, zero.Contains(NewPerson))

	assert.True(t, Wildcard.Contains(MeetingGoalsFailed))
	assert.False(t, Wildcard.Contains(Topic("bogus")))
	assert.True(t, s.Union(Wildcard).IsWildcard())
	assert.Equal(t, len(All()), Wildcard.Len())
}

func TestNewSet_PanicsOnUnknownTopic(t *testing.T) {
	assert.Panics(t, func() { NewSet(Topic("bogus")) })
}

type node struct {
	name string
	subs Set
	emit Set
}

func (n node) Name() string    { return n.name }
func (n node) Subscribes() Set { return n.subs }
func (n node) Emits() Set      { return n.emit }

func TestGraph_Validate(t *testing.T) {
	t.Run("closed graph validates", func(t *testing.T) {
		g := NewGraph(
			node{"discovery", NewSet(NewPerson), NewSet(EnrichPersonPrimary)},
			node{"primary", NewSet(EnrichPersonPrimary), NewSet(NewPersonalData, PersonPrimaryFailed)},
			node{"fallback", NewSet(PersonPrimaryFailed), NewSet(NewPersonalData, PersonEnrichmentFailed)},
		)
		assert.NoError(t, g.Validate())
		assert.Equal(t, []string{"primary"}, g.Subscribers(EnrichPersonPrimary))
		assert.ElementsMatch(t, []string{"primary", "fallback"}, g.Emitters(NewPersonalData))
	})

	t.Run("non-terminal topic without subscriber is a dead end", func(t *testing.T) {
		g := NewGraph(
			node{"primary", NewSet(EnrichPersonPrimary), NewSet(NewPersonalData, PersonPrimaryFailed)},
		)
		err := g.Validate()
		require.Error(t, err)
		var dead *DeadEndError
		require.True(t, errors.As(err, &dead))
		assert.Equal(t, []Topic{PersonPrimaryFailed}, dead.Topics)
	})

	t.Run("describe lists edges", func(t *testing.T) {
		g := NewGraph(node{"primary", NewSet(EnrichPersonPrimary), NewSet(NewPersonalData)})
		assert.Equal(t, "enrich-person-primary -> primary -> [new-personal-data]\n", g.Describe())
	})
}
