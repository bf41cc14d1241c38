package aws

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// EventQueue sends order events to one SQS queue. A queue URL ending in
// ".fifo" is treated as a FIFO queue.
type EventQueue struct {
	client SQSAPI
	url    string
	fifo   bool
}

// NewEventQueue binds client to queueURL.
func NewEventQueue(client SQSAPI, queueURL string) *EventQueue {
	return &EventQueue{
		client: client,
		url:    queueURL,
		fifo:   strings.HasSuffix(queueURL, ".fifo"),
	}
}

// Message is one outgoing queue message.
type Message struct {
	Body       string
	// GroupID and DedupID are only sent to FIFO queues. Messages sharing a
	// group are delivered in the order they were sent.
	GroupID    string
	DedupID    string
	// Attributes become String message attributes; empty values are dropped.
	Attributes map[string]string
}

// Send delivers m and returns the id SQS assigned to it.
func (q *EventQueue) Send(ctx context.Context, m Message) (string, error) {
	input := &sqs.SendMessageInput{
		QueueUrl:          &q.url,
		MessageBody:       &m.Body,
		MessageAttributes: stringAttributes(m.Attributes),
	}
	if q.fifo {
		if m.GroupID == "" {
			return "", fmt.Errorf("send message: fifo queue needs a group id")
		}
		input.MessageGroupId = awsString(m.GroupID)
		if m.DedupID != "" {
			input.MessageDeduplicationId = awsString(m.DedupID)
		}
	}

	out, err := q.client.SendMessage(ctx, input)
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	if out == nil || out.MessageId == nil {
		return "", nil
	}
	return *out.MessageId, nil
}

func stringAttributes(in map[string]string) map[string]sqstypes.MessageAttributeValue {
	var out map[string]sqstypes.MessageAttributeValue
	for k, v := range in {
		if v == "" {
			continue
		}
		if out == nil {
			out = map[string]sqstypes.MessageAttributeValue{}
		}
		out[k] = sqstypes.MessageAttributeValue{
			DataType:    awsString("String"),
			StringValue: awsString(v),
		}
	}
	return out
}

func awsString(s string) *string { return &s }
