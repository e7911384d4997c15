package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"notify-fanout/internal/ratelimit"
)

var (
	fcmOnce    sync.Once
	fcmHandle  *messaging.Client
	fcmInitErr error
)

// initFirebase performs the process-global, idempotent SDK initialization
// §4.4.2 requires: the first call wins, later calls attach to the same
// *messaging.Client regardless of which adapter instance asked (§9's
// once-gate-returning-an-opaque-Handle redesign).
func initFirebase(ctx context.Context, credentialsJSON []byte, credentialsPath string) (*messaging.Client, error) {
	fcmOnce.Do(func() {
		var opts []option.ClientOption
		switch {
		case len(credentialsJSON) > 0:
			opts = append(opts, option.WithCredentialsJSON(credentialsJSON))
		case credentialsPath != "":
			opts = append(opts, option.WithCredentialsFile(credentialsPath))
		default:
			fcmInitErr = &InitError{msg: "firebase: no credentials provided"}
			return
		}

		app, err := firebase.NewApp(ctx, nil, opts...)
		if err != nil {
			fcmInitErr = &InitError{msg: fmt.Sprintf("firebase: %v", err)}
			return
		}

		client, err := app.Messaging(ctx)
		if err != nil {
			fcmInitErr = &InitError{msg: fmt.Sprintf("firebase messaging: %v", err)}
			return
		}

		fcmHandle = client
	})

	return fcmHandle, fcmInitErr
}

// InitError marks a process-global SDK initialization failure (structurally
// invalid credentials).
type InitError struct{ msg string }

func (e *InitError) Error() string { return e.msg }

// PushAdapter sends mobile push via Firebase Cloud Messaging, one send per
// token rather than a multicast, so that each recipient gets its own Result
// (§4.4.2's deliberate choice). Default per-second rate 500, default
// concurrency 5.
type PushAdapter struct {
	client      *messaging.Client
	limiter     *ratelimit.MinTimeLimiter
	concurrency int
}

// NewPushAdapter attaches to (or creates) the process-global Firebase
// handle. ratePerSecond/concurrency of 0 fall back to §4.4.2's defaults
// (500/sec, 5 concurrent).
func NewPushAdapter(ctx context.Context, credentialsJSON []byte, credentialsPath string, ratePerSecond, concurrency int) (*PushAdapter, error) {
	if ratePerSecond <= 0 {
		ratePerSecond = 500
	}
	if concurrency <= 0 {
		concurrency = 5
	}

	client, err := initFirebase(ctx, credentialsJSON, credentialsPath)
	if err != nil {
		return nil, err
	}

	return &PushAdapter{
		client:      client,
		limiter:     ratelimit.NewChannelLimiter(concurrency, ratePerSecond),
		concurrency: concurrency,
	}, nil
}

func (a *PushAdapter) Send(recipients []string, metas []Meta, logger *zap.Logger) []Result {
	return Send(recipients, metas, a.limiter, a.sendOne, a.concurrency, logger)
}

func (a *PushAdapter) sendOne(idx int, recipient string, meta Meta, logger *zap.Logger) Result {
	push, ok := meta.(PushMeta)
	if !ok {
		return Result{Status: StatusError, Recipient: recipient, Error: "Missing meta for recipient"}
	}

	msg := &messaging.Message{
		Token: recipient,
	}

	title, body := push.Title, push.Body
	if v, ok := push.Notification["title"]; ok {
		title = v
	}
	if v, ok := push.Notification["body"]; ok {
		body = v
	}
	if title != "" || body != "" {
		msg.Notification = &messaging.Notification{Title: title, Body: body}
	}
	if len(push.Data) > 0 {
		msg.Data = push.Data
	}

	if len(push.Android) > 0 {
		var android messaging.AndroidConfig
		if err := decodeInto(push.Android, &android); err != nil {
			return Result{Status: StatusError, Recipient: recipient, Error: "INVALID_ANDROID_CONFIG"}
		}
		msg.Android = &android
	}
	if len(push.APNs) > 0 {
		var apns messaging.APNSConfig
		if err := decodeInto(push.APNs, &apns); err != nil {
			return Result{Status: StatusError, Recipient: recipient, Error: "INVALID_APNS_CONFIG"}
		}
		msg.APNS = &apns
	}
	if len(push.WebPush) > 0 {
		var webpush messaging.WebpushConfig
		if err := decodeInto(push.WebPush, &webpush); err != nil {
			return Result{Status: StatusError, Recipient: recipient, Error: "INVALID_WEBPUSH_CONFIG"}
		}
		msg.Webpush = &webpush
	}
	if len(push.FCMOptions) > 0 {
		var fcmOptions messaging.FCMOptions
		if err := decodeInto(push.FCMOptions, &fcmOptions); err != nil {
			return Result{Status: StatusError, Recipient: recipient, Error: "INVALID_FCM_OPTIONS"}
		}
		msg.FCMOptions = &fcmOptions
	}

	if msg.Notification == nil && len(msg.Data) == 0 && msg.Android == nil && msg.APNS == nil && msg.Webpush == nil {
		return Result{
			Status:    StatusError,
			Recipient: recipient,
			Error:     "INVALID_PAYLOAD",
			Response:  "Message must contain notification or data",
		}
	}

	messageID, err := a.client.Send(context.Background(), msg)
	if err != nil {
		return Result{
			Status:    StatusError,
			Recipient: recipient,
			Error:     sanitizeErrorKey("N/A:"+firebaseErrorCode(err), err.Error()),
		}
	}

	return Result{Status: StatusSuccess, Recipient: recipient, Response: messageID}
}

// decodeInto round-trips a generic JSON-object meta field into one of the
// FCM SDK's typed per-platform config structs, the same tagged-union
// re-hydration idiom UnmarshalMeta uses for Job meta — the wire shape and
// the messaging SDK's struct tags agree on field names, so a JSON
// marshal/unmarshal round trip is the conversion.
func decodeInto(src map[string]any, dst any) error {
	raw, err := json.Marshal(src)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}

// firebaseErrorCode extracts the FCM error code from an SDK error. The
// messaging SDK surfaces structured codes via messaging.IsInvalidArgument
// and friends rather than a plain string field, so this does a best-effort
// classification into the handful of named error predicates the SDK exposes.
func firebaseErrorCode(err error) string {
	switch {
	case messaging.IsUnregistered(err):
		return "UNREGISTERED"
	case messaging.IsInvalidArgument(err):
		return "INVALID_ARGUMENT"
	case messaging.IsSenderIDMismatch(err):
		return "SENDER_ID_MISMATCH"
	case messaging.IsQuotaExceeded(err):
		return "QUOTA_EXCEEDED"
	case messaging.IsUnavailable(err):
		return "UNAVAILABLE"
	case messaging.IsInternal(err):
		return "INTERNAL"
	default:
		return "UNKNOWN"
	}
}
