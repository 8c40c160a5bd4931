package domain

type Verdict string

const (
	VerdictAccepted Verdict = "accepted"
	VerdictRejected Verdict = "rejected"
)

const ReasonBlocked = "blocked"

type Decision struct {
	Verdict   Verdict
	Reason    string
	Event     *Event
	NewBlocks []BlockEntry
}

func Accepted(ev Event, blocks []BlockEntry) Decision {
	return Decision{Verdict: VerdictAccepted, Event: &ev, NewBlocks: blocks}
}

func RejectedBlocked() Decision {
	return Decision{Verdict: VerdictRejected, Reason: ReasonBlocked}
}

func (d Decision) IsAccepted() bool {
	return d.Verdict == VerdictAccepted
}
