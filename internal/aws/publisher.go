package aws

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// QueueMessage is one message for an SQS queue. GroupID and DedupID are only
// sent to FIFO queues.
type QueueMessage struct {
	Body       string
	GroupID    string
	DedupID    string
	Attributes map[string]string
}

// Publisher sends messages to a single queue.
type Publisher struct {
	SQS      SQSAPI
	QueueURL string
	fifo     bool
}

func NewPublisher(sqsClient SQSAPI, queueURL string) *Publisher {
	return &Publisher{
		SQS:      sqsClient,
		QueueURL: queueURL,
		fifo:     strings.HasSuffix(queueURL, ".fifo"),
	}
}

// Send delivers m. Empty attribute values are dropped since SQS rejects them.
func (p *Publisher) Send(ctx context.Context, m QueueMessage) error {
	input := &sqs.SendMessageInput{
		QueueUrl:    awsString(p.QueueURL),
		MessageBody: awsString(m.Body),
	}
	if p.fifo {
		if m.GroupID == "" {
			return fmt.Errorf("send message: fifo queue %s needs a group id", p.QueueURL)
		}
		input.MessageGroupId = awsString(m.GroupID)
		if m.DedupID != "" {
			input.MessageDeduplicationId = awsString(m.DedupID)
		}
	}
	for k, v := range m.Attributes {
		if v == "" {
			continue
		}
		if input.MessageAttributes == nil {
			input.MessageAttributes = map[string]sqstypes.MessageAttributeValue{}
		}
		input.MessageAttributes[k] = sqstypes.MessageAttributeValue{
			DataType:    awsString("String"),
			StringValue: awsString(v),
		}
	}

	if _, err := p.SQS.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("send message to %s: %w", p.QueueURL, err)
	}
	return nil
}

func awsString(s string) *string { return &s }
