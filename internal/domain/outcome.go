package domain

import "time"

// ActionKind is the type of interaction attempted in a cycle.
type ActionKind string

const (
	ActionRepost  ActionKind = "repost"
	ActionComment ActionKind = "comment"
)

// ActionKinds lists every kind; selection picks uniformly from it.
var ActionKinds = []ActionKind{ActionRepost, ActionComment}

// Status classifies how a unit of work ended.
type Status string

const (
	StatusDispatched Status = "dispatched"
	StatusSkipped    Status = "skipped"
	StatusFailed     Status = "failed"
)

// SkipReason names a policy decision that prevented an action. Skips are not errors.
type SkipReason string

const (
	SkipQuotaExhausted SkipReason = "quota_exhausted"
	SkipNoContent      SkipReason = "no_content"
	SkipTooRecent      SkipReason = "too_recent"
	SkipDuplicate      SkipReason = "duplicate"
	SkipNoTarget       SkipReason = "no_target"
	SkipNotConfigured  SkipReason = "not_configured"
)

// Outcome is the result of one cycle, or of one community within a comment cycle.
type Outcome struct {
	At        time.Time
	Kind      ActionKind // empty when the quota gate refused the cycle
	Status    Status
	Reason    SkipReason // set when Status == StatusSkipped
	Community string     // source community (repost) or comment community
	Target    string     // target community of a repost
	PostID    string     // post acted upon
	ResultID  string     // id of the created post or reply
	Detail    string
	Err       error // set when Status == StatusFailed

	Children []Outcome // per-community results of a comment cycle
}

func Dispatched(kind ActionKind) Outcome {
	return Outcome{Kind: kind, Status: StatusDispatched}
}

func Skipped(kind ActionKind, reason SkipReason) Outcome {
	return Outcome{Kind: kind, Status: StatusSkipped, Reason: reason}
}

func Failed(kind ActionKind, err error) Outcome {
	return Outcome{Kind: kind, Status: StatusFailed, Err: err}
}

// ErrString returns the error text or "".
func (o Outcome) ErrString() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}
