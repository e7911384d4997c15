package jobqueue

import "encoding/json"

// Job is the unit of work handed from producer to worker (§3). Meta entries
// are serialized as raw JSON objects on the wire; the worker re-hydrates
// each one into the channel.Meta variant its adapter expects.
type Job struct {
	ID             string            `json:"id"`
	UserIDs        []string          `json:"userIds"`
	Channel        string            `json:"channel"`
	Meta           []json.RawMessage `json:"meta"`
	TrackResponses bool              `json:"trackResponses"`
	TrackingKey    string            `json:"trackingKey"`
	CampaignID     string            `json:"campaignId,omitempty"`

	// ClientID and Express, when set, drive the optional billing hold
	// around this job's send attempt (§"Supplemented features"): ClientID
	// identifies the billed account and Express requests the per-recipient
	// surcharge, generalizing the teacher's per-SMS-part pricing to a
	// per-recipient charge against an arbitrary channel batch.
	ClientID string `json:"clientId,omitempty"`
	Express  bool   `json:"express,omitempty"`
}

// Options mirrors the queue-library passthrough job options §4.6 describes:
// attempts, backoff, delay, and remove-on-complete/fail. Defaults are
// {RemoveOnComplete: true, RemoveOnFail: false} per §4.6 step 3.
type Options struct {
	Delay            int64 `json:"delay,omitempty"` // milliseconds
	Attempts         int   `json:"attempts,omitempty"`
	BackoffDelayMs   int64 `json:"backoffDelayMs,omitempty"`
	RemoveOnComplete bool  `json:"removeOnComplete"`
	RemoveOnFail     bool  `json:"removeOnFail"`
}

// DefaultOptions returns the producer's default job options, merged under
// any caller-supplied options by the queue binding.
func DefaultOptions() Options {
	return Options{
		Attempts:         1,
		RemoveOnComplete: true,
		RemoveOnFail:     false,
	}
}

// Merge overlays non-zero fields of override onto a copy of d.
func (d Options) Merge(override Options) Options {
	merged := d
	if override.Delay != 0 {
		merged.Delay = override.Delay
	}
	if override.Attempts != 0 {
		merged.Attempts = override.Attempts
	}
	if override.BackoffDelayMs != 0 {
		merged.BackoffDelayMs = override.BackoffDelayMs
	}
	if override.RemoveOnComplete {
		merged.RemoveOnComplete = true
	}
	if override.RemoveOnFail {
		merged.RemoveOnFail = true
	}
	return merged
}

// Counts reports the queue's current active/waiting/delayed job counts,
// used by WorkerManager's drain-detection poll (§4.7).
type Counts struct {
	Active  int
	Waiting int
	Delayed int
}

// Total sums the three counters; drain detection waits for this to hit zero.
func (c Counts) Total() int {
	return c.Active + c.Waiting + c.Delayed
}
