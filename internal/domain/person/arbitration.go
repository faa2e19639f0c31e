package person

// Decision is the outcome of freshness arbitration
type Decision struct {
	Winner Source
	Record ProviderRecord
}

// BothFailed reports whether no provider record can feed the canonical view
func (d Decision) BothFailed() bool {
	return d.Winner == SourceNone
}

// Arbitrate chooses the provider record the canonical view derives from.
//
// A record that is TRIED_BUT_FAILED never wins, so a failed primary hands the decision to
// the secondary unconditionally and vice versa. Among usable records the newer timestamp
// wins; on equal timestamps the primary wins. The result depends only on the two records,
// never on the order their facts arrived in.
func Arbitrate(primary, secondary ProviderRecord) Decision {
	pOK := usable(primary)
	sOK := usable(secondary)

	switch {
	case pOK && sOK:
		if secondary.NewerThan(primary) {
			return Decision{Winner: SourceSecondary, Record: secondary}
		}
		return Decision{Winner: SourcePrimary, Record: primary}
	case pOK:
		return Decision{Winner: SourcePrimary, Record: primary}
	case sOK:
		return Decision{Winner: SourceSecondary, Record: secondary}
	}
	return Decision{Winner: SourceNone}
}

// SecondaryPreferred reports whether, after a primary failure, the secondary record was
// fetched later than the last successful primary fetch and can be used without asking the
// secondary provider again
func SecondaryPreferred(primary, secondary ProviderRecord) bool {
	return usable(secondary) && secondary.NewerThan(primary)
}

func usable(r ProviderRecord) bool {
	return r.Status != StatusTriedButFailed && !r.UpdatedAt.IsZero() && r.Data != nil
}
