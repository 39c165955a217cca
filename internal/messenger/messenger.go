package messenger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ZilDuck/nft-marketplace/internal/config"
	"github.com/ZilDuck/nft-marketplace/internal/entity"
	"github.com/ZilDuck/nft-marketplace/internal/event"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/sqs"
	"github.com/aws/aws-sdk-go/service/sqs/sqsiface"
	"go.uber.org/zap"
)

var ErrUnknownQueue = errors.New("queue not configured")

type MessageService interface {
	SendMessage(ctx context.Context, item Item, body []byte, attributes map[string]string) error
	SendEvent(ctx context.Context, e entity.Event) error
	PollMessages(ctx context.Context, item Item, messages chan<- *sqs.Message)
	DeleteMessage(ctx context.Context, item Item, message *sqs.Message) error
	GetQueueSize(ctx context.Context, item Item) (int, error)
	Listen(manager *event.Manager)
}

type Messenger struct {
	client sqsiface.SQSAPI
	queues map[Item]string
}

type Item string

var (
	MarketplaceEvents Item = "marketplace.events"
)

const (
	maxMessages    int64 = 10
	waitTimeSecond int64 = 20
	pollBackoff          = 5 * time.Second
)

func NewSqsClient(cfg config.AwsConfig) (sqsiface.SQSAPI, error) {
	awsConfig := &aws.Config{Region: aws.String(cfg.Region)}
	if cfg.AccessKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, cfg.Token)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("aws session: %w", err)
	}

	return sqs.New(sess), nil
}

// NewMessenger publishes to and polls the queues in queues, keyed by item.
func NewMessenger(client sqsiface.SQSAPI, queues map[Item]string) MessageService {
	return &Messenger{client: client, queues: queues}
}

func (m Messenger) queueUrl(item Item) (string, error) {
	url, ok := m.queues[item]
	if !ok || url == "" {
		zap.L().With(zap.String("item", string(item))).Error("[Queue] Queue not found")
		return "", ErrUnknownQueue
	}

	return url, nil
}

func (m Messenger) SendMessage(ctx context.Context, item Item, body []byte, attributes map[string]string) error {
	url, err := m.queueUrl(item)
	if err != nil {
		return err
	}

	input := &sqs.SendMessageInput{
		QueueUrl:          aws.String(url),
		MessageBody:       aws.String(string(body)),
		MessageAttributes: make(map[string]*sqs.MessageAttributeValue),
	}
	for key, value := range attributes {
		input.MessageAttributes[key] = &sqs.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(value),
		}
	}

	output, err := m.client.SendMessageWithContext(ctx, input)
	if err != nil {
		zap.L().With(zap.Error(err), zap.String("item", string(item))).Error("[Queue] Failed to send message")
		return err
	}

	zap.L().With(zap.String("item", string(item)), zap.String("id", aws.StringValue(output.MessageId))).Info("[Queue] Published message")

	return nil
}

func (m Messenger) SendEvent(ctx context.Context, e entity.Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return err
	}

	return m.SendMessage(ctx, MarketplaceEvents, body, map[string]string{
		"type":     string(e.Type),
		"sequence": strconv.FormatUint(e.Sequence, 10),
	})
}

// PollMessages long-polls the queue and forwards every message until ctx is
// done. messages is closed on return.
func (m Messenger) PollMessages(ctx context.Context, item Item, messages chan<- *sqs.Message) {
	defer close(messages)

	url, err := m.queueUrl(item)
	if err != nil {
		return
	}

	for ctx.Err() == nil {
		output, err := m.client.ReceiveMessageWithContext(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:              aws.String(url),
			MaxNumberOfMessages:   aws.Int64(maxMessages),
			WaitTimeSeconds:       aws.Int64(waitTimeSecond),
			MessageAttributeNames: aws.StringSlice([]string{sqs.QueueAttributeNameAll}),
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			zap.L().With(zap.Error(err), zap.String("item", string(item))).Error("[Queue] Failed to receive messages")

			select {
			case <-ctx.Done():
				return
			case <-time.After(pollBackoff):
			}
			continue
		}

		for _, message := range output.Messages {
			select {
			case messages <- message:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (m Messenger) DeleteMessage(ctx context.Context, item Item, message *sqs.Message) error {
	url, err := m.queueUrl(item)
	if err != nil {
		return err
	}

	_, err = m.client.DeleteMessageWithContext(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(url),
		ReceiptHandle: message.ReceiptHandle,
	})

	return err
}

func (m Messenger) GetQueueSize(ctx context.Context, item Item) (int, error) {
	url, err := m.queueUrl(item)
	if err != nil {
		return 0, err
	}

	output, err := m.client.GetQueueAttributesWithContext(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl:       aws.String(url),
		AttributeNames: aws.StringSlice([]string{sqs.QueueAttributeNameApproximateNumberOfMessages}),
	})
	if err != nil {
		return 0, err
	}

	return strconv.Atoi(aws.StringValue(output.Attributes[sqs.QueueAttributeNameApproximateNumberOfMessages]))
}

// Listen forwards every marketplace event published on manager to the
// event queue.
func (m Messenger) Listen(manager *event.Manager) {
	manager.AddEventListener(event.AnyEvent, func(msg interface{}) {
		e, ok := msg.(entity.Event)
		if !ok {
			return
		}

		if err := m.SendEvent(context.Background(), e); err != nil {
			zap.L().With(zap.Error(err), zap.Uint64("sequence", e.Sequence)).Error("[Queue] Failed to forward event")
		}
	})
}

// DecodeEvent reads an event published by SendEvent.
func DecodeEvent(message *sqs.Message) (entity.Event, error) {
	var e entity.Event
	if err := json.Unmarshal([]byte(aws.StringValue(message.Body)), &e); err != nil {
		return entity.Event{}, fmt.Errorf("decode event: %w", err)
	}

	return e, nil
}
