package channel

// Status is the outcome of a single send attempt.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Result is the outcome of one recipient's send attempt, positional within a
// batch: the i-th Result always corresponds to the i-th input, regardless of
// completion order (§4.3 tie-break rule).
type Result struct {
	Status    Status `json:"status"`
	Recipient string `json:"recipient"`
	Response  any    `json:"response,omitempty"`
	Error     string `json:"error,omitempty"`
}
