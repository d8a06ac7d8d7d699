package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"eventsignup/internal/domain"
)

// SESConfig holds configuration for AWS SES.
type SESConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// Config holds configuration for creating a notifier. Provider "ses" sends
// email through AWS SES; anything else logs only.
type Config struct {
	Provider    string
	FromAddress string
	FromName    string
	SES         SESConfig
}

// UserDirectory resolves a user id to a deliverable address. The core
// treats user records as external.
type UserDirectory interface {
	EmailFor(ctx context.Context, userID string) (string, error)
}

// NewNotifier creates a notifier from config.
func NewNotifier(cfg Config, users UserDirectory, logger *slog.Logger) domain.Notifier {
	if cfg.Provider != "ses" {
		return &logNotifier{logger: logger}
	}
	awsCfg := aws.Config{
		Region: cfg.SES.Region,
		Credentials: aws.NewCredentialsCache(
			credentials.NewStaticCredentialsProvider(cfg.SES.AccessKeyID, cfg.SES.SecretAccessKey, ""),
		),
	}
	return &sesNotifier{
		client:      ses.NewFromConfig(awsCfg),
		users:       users,
		fromAddress: cfg.FromAddress,
		fromName:    cfg.FromName,
		logger:      logger,
	}
}

var subjects = map[string]string{
	domain.NotifyRegistered:     "You're in! Your registration is confirmed",
	domain.NotifyWaitingList:    "You're on the waiting list",
	domain.NotifyBumped:         "A spot opened up - you're in",
	domain.NotifyRegisterFailed: "We couldn't complete your registration",
	domain.NotifyUnregistered:   "Your registration was cancelled",
	domain.NotifyPaymentSuccess: "Payment received",
	domain.NotifyPaymentFailure: "Payment failed",
}

type sesNotifier struct {
	client      *ses.Client
	users       UserDirectory
	fromAddress string
	fromName    string
	logger      *slog.Logger
}

func (s *sesNotifier) Notify(ctx context.Context, n domain.Notification) error {
	to, err := s.users.EmailFor(ctx, n.UserID)
	if err != nil {
		return fmt.Errorf("resolve recipient: %w", err)
	}
	subject, ok := subjects[n.Kind]
	if !ok {
		subject = n.Kind
	}
	body := fmt.Sprintf("Update for event %s: %s", n.EventID, subject)
	if pool := n.Payload["pool"]; pool != "" {
		body += fmt.Sprintf(" (pool %s)", pool)
	}
	source := s.fromAddress
	if s.fromName != "" {
		source = fmt.Sprintf("%s <%s>", s.fromName, s.fromAddress)
	}
	input := &ses.SendEmailInput{
		Source:      aws.String(source),
		Destination: &types.Destination{ToAddresses: []string{to}},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject), Charset: aws.String("UTF-8")},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body), Charset: aws.String("UTF-8")},
			},
		},
	}
	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("send email via SES: %w", err)
	}
	s.logger.Debug("notification sent", "kind", n.Kind, "message_id", aws.ToString(result.MessageId))
	return nil
}

type logNotifier struct {
	logger *slog.Logger
}

func (l *logNotifier) Notify(_ context.Context, n domain.Notification) error {
	l.logger.Info("notification",
		"kind", n.Kind, "user_id", n.UserID, "event_id", n.EventID, "payload", n.Payload)
	return nil
}
