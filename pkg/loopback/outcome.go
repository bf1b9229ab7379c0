package loopback

// OutcomeKind tags the terminal event of a loopback server.
type OutcomeKind int

const (
	// OutcomeAuthorized carries the authorization code.
	OutcomeAuthorized OutcomeKind = iota + 1
	// OutcomeDenied carries the provider's error parameter.
	OutcomeDenied
	// OutcomeMalformed means the callback had neither code nor error.
	OutcomeMalformed
	// OutcomeCancelled means the server was closed before any callback.
	OutcomeCancelled
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeAuthorized:
		return "authorized"
	case OutcomeDenied:
		return "denied"
	case OutcomeMalformed:
		return "malformed"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Outcome is reported exactly once per server.
type Outcome struct {
	Kind   OutcomeKind
	Code   string
	Reason string
}

// Lifecycle is the server state: NotStarted, Bound, Closed.
type Lifecycle int

const (
	NotStarted Lifecycle = iota
	Bound
	Closed
)

func (l Lifecycle) String() string {
	switch l {
	case NotStarted:
		return "not_started"
	case Bound:
		return "bound"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}
