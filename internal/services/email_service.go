package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// AWSSESEmailService sends security notification emails using AWS SES
type AWSSESEmailService struct {
	sesClient   *ses.Client
	fromAddress string
	logger      *slog.Logger
}

// NewAWSSESEmailService creates a new AWS SES email service
func NewAWSSESEmailService(region, fromAddress string, logger *slog.Logger) (*AWSSESEmailService, error) {
	cfg, err := config.LoadDefaultConfig(context.Background(), config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &AWSSESEmailService{
		sesClient:   ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		logger:      logger,
	}, nil
}

// SendLockoutAlert notifies an account owner that repeated failed sign-in
// attempts temporarily locked their account.
func (s *AWSSESEmailService) SendLockoutAlert(ctx context.Context, email string, lockedUntil time.Time) error {
	until := lockedUntil.UTC().Format(time.RFC1123)

	textBody := fmt.Sprintf(`Your account was temporarily locked

We detected several failed sign-in attempts on your Craftloom account.
To protect it, sign-in is blocked until %s.

If this was you, wait for the lock to expire and try again.
If this was not you, we recommend changing your password once the lock expires.

This is an automated message. Please do not reply to this email.
`, until)

	htmlBody := fmt.Sprintf(`<p>We detected several failed sign-in attempts on your Craftloom account.
To protect it, sign-in is blocked until <strong>%s</strong>.</p>
<p>If this was you, wait for the lock to expire and try again.
If this was not you, we recommend changing your password once the lock expires.</p>
<p style="color:#666;font-size:12px">This is an automated message. Please do not reply to this email.</p>
`, until)

	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{email},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String("Security alert: your account was temporarily locked"),
			},
			Body: &types.Body{
				Html: &types.Content{
					Data: aws.String(htmlBody),
				},
				Text: &types.Content{
					Data: aws.String(textBody),
				},
			},
		},
	}

	result, err := s.sesClient.SendEmail(ctx, input)
	if err != nil {
		s.logger.Error("failed to send lockout alert via SES", slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("lockout alert sent", slog.String("message_id", *result.MessageId))

	return nil
}
