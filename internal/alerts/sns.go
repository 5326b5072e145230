package alerts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"retailqa/internal/nlq"
)

type SNSClient interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSNotifier publishes unanswered questions to a topic so someone can look at
// the data or the prompts.
type SNSNotifier struct {
	client   SNSClient
	topicArn string
	now      func() time.Time
}

func NewSNSNotifier(c SNSClient, topicArn string) (*SNSNotifier, error) {
	topicArn = strings.TrimSpace(topicArn)
	if topicArn == "" {
		return nil, fmt.Errorf("missing alerts topic arn")
	}
	return &SNSNotifier{client: c, topicArn: topicArn, now: time.Now}, nil
}

func (n *SNSNotifier) NotifyFailure(ctx context.Context, question string, ans nlq.FinalAnswer) error {
	subject, body := buildMessage(question, ans, n.now())
	_, err := n.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(n.topicArn),
		Subject:  aws.String(subject),
		Message:  aws.String(body),
	})
	if err != nil {
		return fmt.Errorf("sns Publish: %w", err)
	}
	return nil
}

func buildMessage(question string, ans nlq.FinalAnswer, now time.Time) (subject string, body string) {
	// SNS subjects are limited to 100 chars
	subject = fmt.Sprintf("retailqa: %s", ans.Termination)
	if len(subject) > 100 {
		subject = subject[:100]
	}

	lines := []string{
		"Unanswered question",
		"",
		fmt.Sprintf("Question: %s", question),
		fmt.Sprintf("Termination: %s", ans.Termination),
		fmt.Sprintf("Attempts: %d", ans.Attempts),
		fmt.Sprintf("Answer: %s", ans.Text),
		"",
		fmt.Sprintf("At: %s", now.UTC().Format(time.RFC3339)),
	}
	return subject, strings.Join(lines, "\n")
}
