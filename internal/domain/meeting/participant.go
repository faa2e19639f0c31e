package meeting

import (
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Participant is one attendee of a meeting
type Participant struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Self  bool   `json:"self,omitempty"`
}

// Domain returns the e-mail domain of the participant
func (p Participant) Domain() string {
	at := strings.LastIndex(p.Email, "@")
	if at < 0 {
		return ""
	}
	return p.Email[at+1:]
}

// CanonicalEmail NFC-normalises, trims and lower-cases an address.
// Visually identical addresses typed with different Unicode compositions map to one value.
func CanonicalEmail(email string) string {
	s := norm.NFC.String(strings.TrimSpace(email))
	// Caser keeps state, so one per call
	return cases.Lower(language.Und).String(s)
}

// CanonicalParticipants returns the participants with canonical e-mails, deduplicated and
// sorted by e-mail. Entries without an e-mail are dropped. A duplicate keeps the first
// non-empty name and is Self when any occurrence is.
func CanonicalParticipants(in []Participant) []Participant {
	byEmail := make(map[string]Participant, len(in))
	for _, p := range in {
		email := CanonicalEmail(p.Email)
		if email == "" || !strings.Contains(email, "@") {
			continue
		}
		cur, ok := byEmail[email]
		if !ok {
			cur = Participant{Email: email}
		}
		if cur.Name == "" {
			cur.Name = strings.TrimSpace(p.Name)
		}
		cur.Self = cur.Self || p.Self
		byEmail[email] = cur
	}
	out := make([]Participant, 0, len(byEmail))
	for _, p := range byEmail {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out
}

// ParticipantHash is the BLAKE2b-256 digest of the canonical e-mail list.
// Names and the self flag do not take part.
func ParticipantHash(canonical []Participant) string {
	h, _ := blake2b.New256(nil)
	for _, p := range canonical {
		h.Write([]byte(p.Email))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// ContentHash digests every field whose change makes a meeting an update
func ContentHash(participantHash, subject, description string, start, end time.Time) string {
	h, _ := blake2b.New256(nil)
	for _, field := range []string{
		participantHash,
		subject,
		description,
		start.UTC().Format(time.RFC3339Nano),
		end.UTC().Format(time.RFC3339Nano),
	} {
		h.Write([]byte(field))
		h.Write([]byte{0x1f})
	}
	return hex.EncodeToString(h.Sum(nil))
}
