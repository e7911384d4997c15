package channel

import (
	"encoding/json"
	"fmt"

	webpush "github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"

	"notify-fanout/internal/ratelimit"
)

// WebAdapter sends browser push notifications via the Web Push protocol
// using github.com/SherClockHolmes/webpush-go. No retrieved example repo
// exercises web push directly; this library is named in DESIGN.md as an
// ecosystem pick rather than a grounded one. Default per-second rate 50,
// default concurrency 5 per §4.4.4.
type WebAdapter struct {
	subscriber  string
	vapidPub    string
	vapidPriv   string
	limiter     *ratelimit.MinTimeLimiter
	concurrency int
}

// NewWebAdapter stores the VAPID key pair and subscriber contact used on
// every outgoing subscription, the same process-global-credential shape the
// teacher's auth.AuthService holds its signing material in.
// ratePerSecond/concurrency of 0 fall back to §4.4.4's defaults (50/sec, 5
// concurrent).
func NewWebAdapter(vapidPublicKey, vapidPrivateKey, subscriber string, ratePerSecond, concurrency int) *WebAdapter {
	if ratePerSecond <= 0 {
		ratePerSecond = 50
	}
	if concurrency <= 0 {
		concurrency = 5
	}

	return &WebAdapter{
		subscriber:  subscriber,
		vapidPub:    vapidPublicKey,
		vapidPriv:   vapidPrivateKey,
		limiter:     ratelimit.NewChannelLimiter(concurrency, ratePerSecond),
		concurrency: concurrency,
	}
}

func (a *WebAdapter) Send(recipients []string, metas []Meta, logger *zap.Logger) []Result {
	return Send(recipients, metas, a.limiter, a.sendOne, a.concurrency, logger)
}

// webSubscription is the {endpoint, keys:{p256dh, auth}} shape recipients
// are expected to serialize per §4.4.4; recipient strings that don't parse
// as this shape are rejected before a send is attempted.
type webSubscription struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

func (a *WebAdapter) sendOne(idx int, recipient string, meta Meta, logger *zap.Logger) Result {
	web, ok := meta.(WebMeta)
	if !ok {
		return Result{Status: StatusError, Recipient: recipient, Error: "Missing meta for recipient"}
	}

	var sub webSubscription
	if err := json.Unmarshal([]byte(recipient), &sub); err != nil || sub.Endpoint == "" || sub.Keys.P256dh == "" || sub.Keys.Auth == "" {
		return Result{
			Status:    StatusError,
			Recipient: fmt.Sprintf("unparseable_sub_at_index_%d", idx),
			Error:     "INVALID_SUBSCRIPTION_STRING",
		}
	}

	if web.Title == "" && web.Body == "" && len(web.Data) == 0 {
		logger.Warn("web push meta has no title, body, or data; defaulting title", zap.String("recipient", lastChars(recipient, 10)))
		web.Title = "Notification"
	}

	payload, err := json.Marshal(map[string]any{
		"title": web.Title,
		"body":  web.Body,
		"icon":  web.Icon,
		"image": web.Image,
		"badge": web.Badge,
		"data":  web.Data,
	})
	if err != nil {
		return Result{Status: StatusError, Recipient: recipient, Error: "INVALID_PAYLOAD"}
	}

	ttl := web.TTL
	if ttl <= 0 {
		ttl = 2419200 // four weeks, the webpush-go default
	}

	resp, err := webpush.SendNotification(payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.Keys.P256dh,
			Auth:   sub.Keys.Auth,
		},
	}, &webpush.Options{
		Subscriber:      a.subscriber,
		VAPIDPublicKey:  a.vapidPub,
		VAPIDPrivateKey: a.vapidPriv,
		TTL:             ttl,
	})
	if err != nil {
		return Result{
			Status:    StatusError,
			Recipient: recipient,
			Error:     sanitizeErrorKey("WEBPUSH_ERROR", err.Error()),
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return Result{
			Status:    StatusError,
			Recipient: recipient,
			Error:     sanitizeErrorKey(fmt.Sprintf("%d", resp.StatusCode), resp.Status),
		}
	}

	return Result{
		Status:    StatusSuccess,
		Recipient: recipient,
		Response:  map[string]any{"status_code": resp.StatusCode},
	}
}
