package jobqueue

import (
	"encoding/json"
	"fmt"
)

// codecVersion is embedded in every encoded payload so a future wire-shape
// change can be detected and migrated rather than silently misparsed by an
// older binding still reading the queue.
const codecVersion = 1

// jobEnvelope is the versioned wire shape for a bare Job, used by bindings
// that already carry jobName/queueName/opts outside the payload (dbqueue's
// separate columns).
type jobEnvelope struct {
	Version int  `json:"v"`
	Job     *Job `json:"job"`
}

// Envelope is the versioned wire shape for a full Add call — job name and
// merged Options alongside the Job body — used by bindings whose transport
// carries one opaque blob per message (natsqueue's JetStream payload),
// mirroring the teacher's nats.SendJob JSON envelope but generalized beyond
// one fixed job type.
type Envelope struct {
	Version int     `json:"v"`
	JobName string  `json:"jobName"`
	Job     *Job    `json:"job"`
	Opts    Options `json:"opts"`
}

// JobCodec is the single encode/decode pair every queue binding routes its
// wire traffic through (§2, §3), so a NATS JetStream message payload and a
// Postgres JSONB row share one serialization instead of each binding
// hand-rolling its own ad hoc json.Marshal. The zero value is ready to use.
type JobCodec struct{}

// NewJobCodec returns the default codec, exists for symmetry with the rest
// of the package's constructors though the zero value works identically.
func NewJobCodec() JobCodec { return JobCodec{} }

// EncodeJob serializes a bare Job into a versioned payload, for bindings
// that store queueName/jobName/opts outside the encoded blob.
func (JobCodec) EncodeJob(job *Job) ([]byte, error) {
	data, err := json.Marshal(jobEnvelope{Version: codecVersion, Job: job})
	if err != nil {
		return nil, fmt.Errorf("encode job: %w", err)
	}
	return data, nil
}

// DecodeJob parses data produced by EncodeJob, rejecting a version it
// doesn't recognize rather than silently misreading a future wire shape.
func (JobCodec) DecodeJob(data []byte) (*Job, error) {
	var env jobEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}
	if env.Version != 0 && env.Version != codecVersion {
		return nil, fmt.Errorf("unsupported job payload version %d", env.Version)
	}
	return env.Job, nil
}

// EncodeEnvelope serializes jobName/job/opts into a single versioned blob,
// for bindings whose transport carries one opaque payload per message.
func (JobCodec) EncodeEnvelope(jobName string, job *Job, opts Options) ([]byte, error) {
	data, err := json.Marshal(Envelope{Version: codecVersion, JobName: jobName, Job: job, Opts: opts})
	if err != nil {
		return nil, fmt.Errorf("encode job envelope: %w", err)
	}
	return data, nil
}

// DecodeEnvelope parses data produced by EncodeEnvelope.
func (JobCodec) DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode job envelope: %w", err)
	}
	if env.Version != 0 && env.Version != codecVersion {
		return Envelope{}, fmt.Errorf("unsupported job envelope version %d", env.Version)
	}
	return env, nil
}
