package classify

type Verdict int

const (
	Reject Verdict = iota
	Accept
	// Unparseable is any answer other than exactly "True" or "False". It
	// rejects the email like Reject does.
	Unparseable
)

func (v Verdict) String() string {
	switch v {
	case Accept:
		return "accept"
	case Reject:
		return "reject"
	default:
		return "unparseable"
	}
}

// Keep reports whether the email stays in the scan.
func (v Verdict) Keep() bool {
	return v == Accept
}

// ParseVerdict reads the classifier's answer. Only an exact "True" accepts;
// surrounding whitespace makes the answer unparseable.
func ParseVerdict(text string) Verdict {
	switch text {
	case "True":
		return Accept
	case "False":
		return Reject
	default:
		return Unparseable
	}
}
