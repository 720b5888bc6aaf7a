package notifier

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"golang.org/x/time/rate"
)

// SNSAPI is the subset of the SNS client used for delivery
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSNotifier sends SMS through Amazon SNS.
// Sends are paced by a token bucket to stay under the account's SMS quota.
type SNSNotifier struct {
	client  SNSAPI
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewSNSNotifier creates an SMS notifier sending at most perSecond messages per second.
// A non-positive rate disables pacing.
func NewSNSNotifier(client SNSAPI, perSecond float64, logger *slog.Logger) *SNSNotifier {
	limit := rate.Inf
	burst := 1
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
		burst = max(1, int(perSecond))
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SNSNotifier{client: client, limiter: rate.NewLimiter(limit, burst), logger: logger}
}

// Send ignores subject; SMS has no subject line
func (n *SNSNotifier) Send(ctx context.Context, destination, _ string, body string) error {
	if err := n.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("sns pacing: %w", err)
	}
	out, err := n.client.Publish(ctx, &sns.PublishInput{
		PhoneNumber: aws.String(destination),
		Message:     aws.String(body),
	})
	if err != nil {
		n.logger.ErrorContext(ctx, "sns publish failed", "component", "notifier", "error", err)
		return fmt.Errorf("sns publish: %w", err)
	}
	n.logger.InfoContext(ctx, "sns sms sent", "component", "notifier", "message_id", aws.ToString(out.MessageId))
	return nil
}
