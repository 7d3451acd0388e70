package notifications

import (
	"context"
	"fmt"
	"strings"

	"github.com/promptability/Website-sub002/pkg/config"
	pkgerrors "github.com/promptability/Website-sub002/pkg/errors"
	"github.com/promptability/Website-sub002/pkg/logger"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// Sender delivers a rendered email.
type Sender interface {
	Send(ctx context.Context, email Email) error
}

type sendgridClient interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// SendgridSender delivers email through the SendGrid v3 API.
type SendgridSender struct {
	client sendgridClient
	from   *mail.Email
}

// NewSendgridSender builds a sender from configuration.
func NewSendgridSender(cfg config.SendgridConfig) (*SendgridSender, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "sendgrid api key required")
	}
	return newSendgridSender(sendgrid.NewSendClient(cfg.APIKey), cfg)
}

func newSendgridSender(client sendgridClient, cfg config.SendgridConfig) (*SendgridSender, error) {
	if strings.TrimSpace(cfg.DefaultFrom) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "sendgrid sender address required")
	}
	return &SendgridSender{
		client: client,
		from:   mail.NewEmail(cfg.FromName, cfg.DefaultFrom),
	}, nil
}

func (s *SendgridSender) Send(ctx context.Context, email Email) error {
	msg := mail.NewSingleEmail(s.from, email.Subject, mail.NewEmail(email.ToName, email.To), email.Text, email.HTML)
	resp, err := s.client.SendWithContext(ctx, msg)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeExternalService, err, "sendgrid send")
	}
	if resp != nil && resp.StatusCode >= 300 {
		return pkgerrors.New(pkgerrors.CodeExternalService, fmt.Sprintf("sendgrid responded %d", resp.StatusCode))
	}
	return nil
}

// LogSender writes emails to the log instead of delivering them. Used when
// no SendGrid key is configured.
type LogSender struct {
	logg *logger.Logger
}

func NewLogSender(logg *logger.Logger) *LogSender {
	return &LogSender{logg: logg}
}

func (s *LogSender) Send(ctx context.Context, email Email) error {
	ctx = s.logg.WithFields(ctx, map[string]any{
		"to":      email.To,
		"subject": email.Subject,
	})
	s.logg.Info(ctx, "notification.logged")
	return nil
}
