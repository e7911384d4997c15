package channel

import (
	"fmt"
	"io"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"notify-fanout/internal/ratelimit"
)

// EmailAdapter sends transactional email over SMTP via gopkg.in/gomail.v2,
// the library example repos dpup-prefab and ilindan-dev-delayed-notifier use
// for the same purpose. Default per-second rate 10, default concurrency 3
// per §4.4.1.
type EmailAdapter struct {
	from        string
	dialer      *gomail.Dialer
	limiter     *ratelimit.MinTimeLimiter
	concurrency int
}

// NewEmailAdapter builds an adapter that sends through host:port.
// ratePerSecond/concurrency of 0 fall back to §4.4.1's defaults (10/sec, 3
// concurrent). Each send dials and authenticates a fresh SMTP connection
// (gomail's DialAndSend) and closes it afterwards; connections are not
// pooled or reused, and the number open at once is bounded only by the
// MinTimeLimiter's concurrency cap.
func NewEmailAdapter(host string, port int, username, password, from string, ratePerSecond, concurrency int) *EmailAdapter {
	if ratePerSecond <= 0 {
		ratePerSecond = 10
	}
	if concurrency <= 0 {
		concurrency = 3
	}

	dialer := gomail.NewDialer(host, port, username, password)

	return &EmailAdapter{
		from:        from,
		dialer:      dialer,
		limiter:     ratelimit.NewChannelLimiter(concurrency, ratePerSecond),
		concurrency: concurrency,
	}
}

func (a *EmailAdapter) Send(recipients []string, metas []Meta, logger *zap.Logger) []Result {
	return Send(recipients, metas, a.limiter, a.sendOne, a.concurrency, logger)
}

func (a *EmailAdapter) sendOne(idx int, recipient string, meta Meta, logger *zap.Logger) Result {
	email, ok := meta.(EmailMeta)
	if !ok {
		return Result{Status: StatusError, Recipient: recipient, Error: "Missing meta for recipient"}
	}

	if email.Subject == "" {
		return Result{Status: StatusError, Recipient: recipient, Error: "MISSING_SUBJECT"}
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", a.from)
	msg.SetHeader("To", recipient)
	msg.SetHeader("Subject", email.Subject)

	if email.HTML != "" {
		msg.SetBody("text/html", email.HTML)
	} else {
		msg.SetBody("text/plain", email.Text)
	}

	for _, att := range email.Attachments {
		content := att.Content
		msg.Attach(att.Filename, gomail.SetCopyFunc(func(w io.Writer) error {
			_, err := w.Write(content)
			return err
		}))
	}

	if err := a.dialer.DialAndSend(msg); err != nil {
		code := "SMTP_ERROR"
		return Result{
			Status:    StatusError,
			Recipient: recipient,
			Error:     sanitizeErrorKey(code, err.Error()),
		}
	}

	messageID := fmt.Sprintf("email-%s", recipient)
	return Result{
		Status:    StatusSuccess,
		Recipient: recipient,
		Response: map[string]any{
			"message_id": messageID,
			"accepted":   []string{recipient},
			"rejected":   []string{},
		},
	}
}
