package channel

// Verdict is the outcome of classifying one raw webhook update. Expected,
// non-exceptional routing decisions (drops, verification failures) are values
// here rather than errors.
type Verdict int

const (
	// VerdictMessage means the update carries a user message to dispatch.
	VerdictMessage Verdict = iota
	// VerdictIgnored means the update type is unsupported; the platform
	// still receives a success acknowledgment so it never retries.
	VerdictIgnored
	// VerdictRejected means request verification failed; the platform
	// receives a distinguishing failure text and nothing is dispatched.
	VerdictRejected
)

// Classification is the result of mapping one raw update to normalized
// message parts. SenderID and Text are populated only for VerdictMessage.
type Classification struct {
	Verdict  Verdict
	SenderID string
	Text     string
}

// Message builds a dispatchable classification.
func Message(senderID string, text string) Classification {
	return Classification{Verdict: VerdictMessage, SenderID: senderID, Text: text}
}

// Ignored builds a drop classification.
func Ignored() Classification {
	return Classification{Verdict: VerdictIgnored}
}

// Rejected builds a verification-failure classification.
func Rejected() Classification {
	return Classification{Verdict: VerdictRejected}
}
