package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"notify-fanout/internal/channel"
)

type stubAdapter struct{ id string }

func (s stubAdapter) Send(recipients []string, metas []channel.Meta, logger *zap.Logger) []channel.Result {
	return nil
}

func TestRegisterAndGet(t *testing.T) {
	r := New(zap.NewNop())
	a := stubAdapter{id: "a"}

	r.Register(channel.Email, a)

	got, ok := r.Get(channel.Email)
	assert.True(t, ok)
	assert.Equal(t, a, got)

	_, ok = r.Get(channel.Telegram)
	assert.False(t, ok)
}

func TestRegisterOverwriteWarns(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	logger := zap.New(core)
	r := New(logger)

	r.Register(channel.Email, stubAdapter{id: "first"})
	r.Register(channel.Email, stubAdapter{id: "second"})

	assert.Equal(t, 1, logs.Len())

	got, ok := r.Get(channel.Email)
	assert.True(t, ok)
	assert.Equal(t, stubAdapter{id: "second"}, got)
}

func TestUnregisterAndClear(t *testing.T) {
	r := New(zap.NewNop())
	r.Register(channel.Email, stubAdapter{})
	r.Register(channel.Web, stubAdapter{})

	r.Unregister(channel.Email)
	_, ok := r.Get(channel.Email)
	assert.False(t, ok)

	assert.Len(t, r.Names(), 1)

	r.Clear()
	assert.Len(t, r.Names(), 0)
}
