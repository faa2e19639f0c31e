// Package topic defines the closed vocabulary of bus topics that forms the saga graph.
//
// Topics are plain identifiers on the wire. The set is fixed at compile time: there is no
// runtime registration, and Parse rejects anything outside All().
package topic

import (
	"fmt"
	"sort"
	"strings"
)

// Version is the vocabulary version. Bump it when a topic is renamed or removed.
const Version = "v1"

// Topic is a named point in the saga graph
type Topic string

// Kind groups topics by the role they play in a saga
type Kind string

const (
	KindDiscovery Kind = "discovery"
	KindRequest   Kind = "request"
	KindFact      Kind = "fact"
	KindSuccess   Kind = "success"
	KindUpToDate  Kind = "up_to_date"
	KindFailure   Kind = "failure"
)

// Person saga
const (
	NewPerson               Topic = "new-person"
	EnrichPersonPrimary     Topic = "enrich-person-primary"
	PersonPrimaryFailed     Topic = "person-primary-failed"
	EnrichPersonSecondary   Topic = "enrich-person-secondary"
	PersonSecondaryFetched  Topic = "person-secondary-fetched"
	PersonSecondaryFailed   Topic = "person-secondary-failed"
	PersonSecondaryUpToDate Topic = "person-secondary-up-to-date"
	NewPersonalData         Topic = "new-personal-data"
	PersonEnrichmentFailed  Topic = "person-enrichment-failed"
	BuildPersonProfile      Topic = "build-person-profile"
	PersonProfileBuilt      Topic = "person-profile-built"
	PersonProfileFailed     Topic = "person-profile-failed"
)

// Company saga
const (
	NewCompany              Topic = "new-company"
	CompanyEnriched         Topic = "company-enriched"
	CompanyEnrichmentFailed Topic = "company-enrichment-failed"
	RefreshCompanyNews      Topic = "refresh-company-news"
	CompanyNewsUpdated      Topic = "company-news-updated"
	CompanyNewsUpToDate     Topic = "company-news-up-to-date"
	CompanyNewsFailed       Topic = "company-news-failed"
)

// Meeting saga
const (
	NewMeeting            Topic = "new-meeting"
	MeetingIngested       Topic = "meeting-ingested"
	GenerateMeetingGoals  Topic = "generate-meeting-goals"
	MeetingGoalsGenerated Topic = "meeting-goals-generated"
	MeetingGoalsFailed    Topic = "meeting-goals-failed"
)

var kinds = map[Topic]Kind{
	NewPerson:               KindDiscovery,
	EnrichPersonPrimary:     KindRequest,
	PersonPrimaryFailed:     KindFact,
	EnrichPersonSecondary:   KindRequest,
	PersonSecondaryFetched:  KindFact,
	PersonSecondaryFailed:   KindFact,
	PersonSecondaryUpToDate: KindUpToDate,
	NewPersonalData:         KindSuccess,
	PersonEnrichmentFailed:  KindFailure,
	BuildPersonProfile:      KindRequest,
	PersonProfileBuilt:      KindSuccess,
	PersonProfileFailed:     KindFailure,

	NewCompany:              KindDiscovery,
	CompanyEnriched:         KindSuccess,
	CompanyEnrichmentFailed: KindFailure,
	RefreshCompanyNews:      KindRequest,
	CompanyNewsUpdated:      KindSuccess,
	CompanyNewsUpToDate:     KindUpToDate,
	CompanyNewsFailed:       KindFailure,

	NewMeeting:            KindDiscovery,
	MeetingIngested:       KindFact,
	GenerateMeetingGoals:  KindRequest,
	MeetingGoalsGenerated: KindSuccess,
	MeetingGoalsFailed:    KindFailure,
}

// All returns every topic of the vocabulary, sorted
func All() []Topic {
	out := make([]Topic, 0, len(kinds))
	for t := range kinds {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Parse converts a wire name into a Topic
func Parse(s string) (Topic, error) {
	t := Topic(strings.TrimSpace(s))
	if _, ok := kinds[t]; !ok {
		return "", fmt.Errorf("unknown topic %q (vocabulary %s)", s, Version)
	}
	return t, nil
}

// IsValid reports whether t belongs to the vocabulary
func (t Topic) IsValid() bool {
	_, ok := kinds[t]
	return ok
}

// Kind returns the role of the topic, or "" for unknown topics
func (t Topic) Kind() Kind {
	return kinds[t]
}

// IsFailure reports whether t is a terminal failure fact
func (t Topic) IsFailure() bool {
	return kinds[t] == KindFailure
}

// IsTerminal reports whether a saga branch ends at t
func (t Topic) IsTerminal() bool {
	switch kinds[t] {
	case KindSuccess, KindFailure, KindUpToDate:
		return true
	}
	return false
}

func (t Topic) String() string {
	return string(t)
}

// Failures returns every failure topic
func Failures() []Topic {
	var out []Topic
	for _, t := range All() {
		if t.IsFailure() {
			out = append(out, t)
		}
	}
	return out
}
