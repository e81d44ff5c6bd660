package notify

import (
	"context"
	"encoding/json"
	"errors"

	"craftshop-backend/internal/domain"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// SQSAPI is the part of the SQS client the publisher needs.
type SQSAPI interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSPublisher puts order events on a queue for downstream processors.
type SQSPublisher struct {
	client   SQSAPI
	queueURL string
}

func NewSQSPublisher(client SQSAPI, queueURL string) (*SQSPublisher, error) {
	if client == nil || queueURL == "" {
		return nil, errors.New("sqs client and queue url required")
	}
	return &SQSPublisher{client: client, queueURL: queueURL}, nil
}

type Envelope struct {
	Event Event        `json:"event"`
	Order domain.Order `json:"order"`
}

func (p *SQSPublisher) Notify(ctx context.Context, ev Event, o domain.Order) error {
	body, err := json.Marshal(Envelope{Event: ev, Order: o})
	if err != nil {
		return err
	}
	_, err = p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"event": {DataType: aws.String("String"), StringValue: aws.String(string(ev))},
		},
	})
	return err
}
