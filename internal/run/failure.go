package run

// FailureKind classifies an error outcome at the point the failure is
// observed, so the retry decision never has to re-read the message.
type FailureKind int

const (
	FailureNone FailureKind = iota
	FailureRateLimited
	FailureUnavailable
	FailureNetwork
	FailureUpstreamTimeout
	FailureOther
)

func (k FailureKind) String() string {
	switch k {
	case FailureNone:
		return "none"
	case FailureRateLimited:
		return "rate_limited"
	case FailureUnavailable:
		return "unavailable"
	case FailureNetwork:
		return "network"
	case FailureUpstreamTimeout:
		return "upstream_timeout"
	case FailureOther:
		return "other"
	default:
		return "unknown"
	}
}

// Transient reports whether an immediate retry is likely to succeed.
func (k FailureKind) Transient() bool {
	switch k {
	case FailureRateLimited, FailureUnavailable, FailureNetwork, FailureUpstreamTimeout:
		return true
	}
	return false
}

// Retryable reports whether o qualifies for the single retry.
func (o Outcome) Retryable() bool {
	return o.Status == StatusError && o.Failure.Transient()
}
