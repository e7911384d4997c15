package jobqueue

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobCodecEncodeDecodeJobRoundTrips(t *testing.T) {
	codec := NewJobCodec()
	job := &Job{ID: "j1", UserIDs: []string{"u1", "u2"}, Channel: "email", Meta: []json.RawMessage{json.RawMessage(`{"subject":"hi"}`)}}

	data, err := codec.EncodeJob(job)
	require.NoError(t, err)

	decoded, err := codec.DecodeJob(data)
	require.NoError(t, err)
	assert.Equal(t, job.ID, decoded.ID)
	assert.Equal(t, job.UserIDs, decoded.UserIDs)
	assert.Equal(t, job.Channel, decoded.Channel)
}

func TestJobCodecEncodeDecodeEnvelopeRoundTrips(t *testing.T) {
	codec := NewJobCodec()
	job := &Job{ID: "j2", Channel: "push"}
	opts := Options{Attempts: 3, RemoveOnComplete: true}

	data, err := codec.EncodeEnvelope("send-push", job, opts)
	require.NoError(t, err)

	env, err := codec.DecodeEnvelope(data)
	require.NoError(t, err)
	assert.Equal(t, "send-push", env.JobName)
	assert.Equal(t, job.ID, env.Job.ID)
	assert.Equal(t, opts.Attempts, env.Opts.Attempts)
}

func TestJobCodecDecodeJobRejectsUnsupportedVersion(t *testing.T) {
	codec := NewJobCodec()

	_, err := codec.DecodeJob([]byte(`{"v":99,"job":{"id":"x"}}`))
	assert.Error(t, err)
}

func TestJobCodecDecodeEnvelopeRejectsUnsupportedVersion(t *testing.T) {
	codec := NewJobCodec()

	_, err := codec.DecodeEnvelope([]byte(`{"v":99,"jobName":"x","job":{"id":"x"},"opts":{}}`))
	assert.Error(t, err)
}
