package channels

type OutcomeKind int

const (
	Completed OutcomeKind = iota
	TransientFailure
	PermanentFailure
)

func (k OutcomeKind) String() string {
	switch k {
	case Completed:
		return "completed"
	case TransientFailure:
		return "transient_failure"
	case PermanentFailure:
		return "permanent_failure"
	}
	return "unknown"
}

// Outcome is the three-way result of one dispatch.
type Outcome struct {
	Kind      OutcomeKind
	Reason    string
	ResultRef string
	// Structural marks a permanent failure that can never succeed for this
	// subject, such as a certificate before completion. The record is skipped
	// rather than failed.
	Structural bool
	// Duplicate is set when the idempotency marker showed the effect had
	// already happened and nothing was sent.
	Duplicate bool
}

func Done(resultRef string) Outcome {
	return Outcome{Kind: Completed, ResultRef: resultRef}
}

func Transient(reason string) Outcome {
	return Outcome{Kind: TransientFailure, Reason: reason}
}

func Permanent(reason string) Outcome {
	return Outcome{Kind: PermanentFailure, Reason: reason}
}

func Impossible(reason string) Outcome {
	return Outcome{Kind: PermanentFailure, Reason: reason, Structural: true}
}
