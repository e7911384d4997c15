package worker

// InvalidJobError marks a job whose payload failed structural validation
// (§4.7 step 3 — non-empty ordered user_ids). The queue's own retry policy
// decides whether to retry; the worker never retries this itself.
type InvalidJobError struct {
	Reason string
}

func (e *InvalidJobError) Error() string {
	return "invalid job: " + e.Reason
}

// UnknownChannelError marks a job whose Channel does not resolve to a
// registered adapter (§4.7 step 4).
type UnknownChannelError struct {
	Channel string
}

func (e *UnknownChannelError) Error() string {
	return "unknown channel: " + e.Channel
}
