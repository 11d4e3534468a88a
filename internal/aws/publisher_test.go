package aws

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

type mockSQS struct {
	inputs []*sqs.SendMessageInput
	err    error
}

func (m *mockSQS) SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.inputs = append(m.inputs, in)
	return &sqs.SendMessageOutput{}, nil
}

func TestPublisher_Send(t *testing.T) {
	mock := &mockSQS{}
	p := NewPublisher(mock, "https://sqs.local/discounts")

	err := p.Send(context.Background(), QueueMessage{
		Body:    `{"reward_id":"r1"}`,
		GroupID: "c1",
		DedupID: "m1",
		Attributes: map[string]string{
			"kind":  "discount.provision",
			"empty": "",
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(mock.inputs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(mock.inputs))
	}
	in := mock.inputs[0]
	if *in.QueueUrl != "https://sqs.local/discounts" {
		t.Fatalf("queue url mismatch: %s", *in.QueueUrl)
	}
	if in.MessageGroupId != nil || in.MessageDeduplicationId != nil {
		t.Fatalf("standard queue should not get fifo fields")
	}
	if _, ok := in.MessageAttributes["empty"]; ok {
		t.Fatalf("empty attribute should be dropped")
	}
	if v := in.MessageAttributes["kind"].StringValue; v == nil || *v != "discount.provision" {
		t.Fatalf("kind attribute missing")
	}
}

func TestPublisher_SendFIFO(t *testing.T) {
	mock := &mockSQS{}
	p := NewPublisher(mock, "https://sqs.local/discounts.fifo")

	if err := p.Send(context.Background(), QueueMessage{Body: "{}", GroupID: "c1", DedupID: "m1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	in := mock.inputs[0]
	if in.MessageGroupId == nil || *in.MessageGroupId != "c1" {
		t.Fatalf("group id not set")
	}
	if in.MessageDeduplicationId == nil || *in.MessageDeduplicationId != "m1" {
		t.Fatalf("dedup id not set")
	}
	if in.MessageAttributes != nil {
		t.Fatalf("expected no attributes, got %v", in.MessageAttributes)
	}

	if err := p.Send(context.Background(), QueueMessage{Body: "{}"}); err == nil {
		t.Fatalf("expected error for missing group id")
	}
	if len(mock.inputs) != 1 {
		t.Fatalf("message without group id should not be sent")
	}
}

func TestPublisher_SendError(t *testing.T) {
	boom := errors.New("throttled")
	p := NewPublisher(&mockSQS{err: boom}, "q")
	if err := p.Send(context.Background(), QueueMessage{Body: "{}"}); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}
