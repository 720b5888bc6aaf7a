package notifier

import (
	"context"
	"fmt"
	"html"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// DefaultFromAddress is used when no sender address is configured
const DefaultFromAddress = "noreply@noteappsolutions.com"

// SESAPI is the subset of the SES v2 client used for delivery
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESNotifier sends email through Amazon SES
type SESNotifier struct {
	client SESAPI
	from   string
	logger *slog.Logger
}

// NewSESNotifier creates an email notifier
func NewSESNotifier(client SESAPI, from string, logger *slog.Logger) *SESNotifier {
	if from == "" {
		from = DefaultFromAddress
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SESNotifier{client: client, from: from, logger: logger}
}

func (n *SESNotifier) Send(ctx context.Context, destination, subject, body string) error {
	out, err := n.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(n.from),
		Destination:      &types.Destination{ToAddresses: []string{destination}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject)},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(body)},
					Html: &types.Content{Data: aws.String("<p>" + html.EscapeString(body) + "</p>")},
				},
			},
		},
	})
	if err != nil {
		n.logger.ErrorContext(ctx, "ses send failed", "component", "notifier", "error", err)
		return fmt.Errorf("ses send email: %w", err)
	}
	n.logger.InfoContext(ctx, "ses email sent", "component", "notifier", "message_id", aws.ToString(out.MessageId))
	return nil
}
