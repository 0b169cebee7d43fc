package sqs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/aws/smithy-go"
	"github.com/example/ec-checkout/internal/infrastructure/store"
)

// API is the subset of the SQS client the publisher uses.
type API interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// Publisher sends journal events to an SQS queue.
type Publisher struct {
	client   API
	queueURL string
}

func NewPublisher(client API, queueURL string) *Publisher {
	return &Publisher{client: client, queueURL: queueURL}
}

func (p *Publisher) Publish(ctx context.Context, key string, event any) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	attrs := map[string]sqstypes.MessageAttributeValue{
		"aggregate_id": {DataType: aws.String("String"), StringValue: aws.String(key)},
	}
	if e, ok := event.(store.Event); ok {
		attrs["event_type"] = sqstypes.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(e.EventType)}
	}

	_, err = p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:          aws.String(p.queueURL),
		MessageBody:       aws.String(string(body)),
		MessageAttributes: attrs,
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			log.Printf("[SQS] SendMessage failed for %s: %s (%s)", key, apiErr.ErrorCode(), apiErr.ErrorMessage())
		}
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}
