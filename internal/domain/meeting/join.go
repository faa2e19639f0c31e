package meeting

import "context"

// JoinPart is one input of the goal-generation fan-in
type JoinPart string

const (
	PartParticipantData JoinPart = "participant_data"
	PartCompanyData     JoinPart = "company_data"
)

// JoinParts lists every part the join waits for
var JoinParts = []JoinPart{PartParticipantData, PartCompanyData}

// JoinStore tracks the fan-in of each external meeting and which meetings wait on which
// participant or company.
type JoinStore interface {
	// Watch registers the meeting as waiting on the given participant e-mails and domains
	Watch(ctx context.Context, meetingID string, emails, domains []string) error
	// MeetingsForParticipant returns the meetings waiting on the e-mail
	MeetingsForParticipant(ctx context.Context, email string) ([]string, error)
	// MeetingsForDomain returns the meetings waiting on the company domain
	MeetingsForDomain(ctx context.Context, domain string) ([]string, error)
	// Record marks part present. fired is true for exactly one call: the first one after
	// which every part is present.
	Record(ctx context.Context, meetingID string, part JoinPart) (fired bool, err error)
	// Parts returns the parts recorded so far
	Parts(ctx context.Context, meetingID string) ([]JoinPart, error)
	// Reset forgets the join state and watches of the meeting
	Reset(ctx context.Context, meetingID string) error
}
