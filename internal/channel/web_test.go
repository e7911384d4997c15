package channel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestWebSendOneUnparseableSubscriptionUsesIndexPlaceholder(t *testing.T) {
	a := NewWebAdapter("pub", "priv", "mailto:ops@example.com", 1000, 5)

	result := a.sendOne(3, "not-json", WebMeta{Title: "hi"}, zap.NewNop())

	assert.Equal(t, StatusError, result.Status)
	assert.Equal(t, "unparseable_sub_at_index_3", result.Recipient)
	assert.Equal(t, "INVALID_SUBSCRIPTION_STRING", result.Error)
}

func TestWebSendOneMissingMetaForRecipient(t *testing.T) {
	a := NewWebAdapter("pub", "priv", "mailto:ops@example.com", 1000, 5)

	result := a.sendOne(0, `{"endpoint":"https://example.com","keys":{"p256dh":"p","auth":"a"}}`, nil, zap.NewNop())

	assert.Equal(t, StatusError, result.Status)
	assert.Equal(t, "Missing meta for recipient", result.Error)
}

func TestWebSendOneDefaultsTitleWhenPayloadEmpty(t *testing.T) {
	a := NewWebAdapter("pub", "priv", "mailto:ops@example.com", 1000, 5)

	sub := `{"endpoint":"https://push.example.com/abc","keys":{"p256dh":"p","auth":"a"}}`
	result := a.sendOne(0, sub, WebMeta{}, zap.NewNop())

	// The subscription is well-formed so sendOne proceeds past the default-title
	// check into the actual webpush.SendNotification call, which fails against
	// a non-push-service URL. The default-title branch is exercised either way
	// (it runs before the network call); what matters here is that it's not
	// rejected as INVALID_SUBSCRIPTION_STRING or dropped silently.
	assert.Equal(t, StatusError, result.Status)
	assert.NotEqual(t, "INVALID_SUBSCRIPTION_STRING", result.Error)
}
