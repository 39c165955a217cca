package messenger

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ZilDuck/nft-marketplace/internal/entity"
	"github.com/ZilDuck/nft-marketplace/internal/event"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/sqs"
	"github.com/aws/aws-sdk-go/service/sqs/sqsiface"
	"github.com/stretchr/testify/require"
)

const queueUrl = "https://sqs.eu-west-1.amazonaws.com/000000000000/marketplace-events"

// fakeQueue keeps messages in memory. Unimplemented SQSAPI methods panic.
type fakeQueue struct {
	sqsiface.SQSAPI

	mu       sync.Mutex
	messages []*sqs.Message
	deleted  []string
	fail     error
}

func (q *fakeQueue) SendMessageWithContext(_ aws.Context, in *sqs.SendMessageInput, _ ...request.Option) (*sqs.SendMessageOutput, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.fail != nil {
		return nil, q.fail
	}

	id := aws.String(time.Now().String())
	q.messages = append(q.messages, &sqs.Message{
		MessageId:         id,
		ReceiptHandle:     id,
		Body:              in.MessageBody,
		MessageAttributes: in.MessageAttributes,
	})

	return &sqs.SendMessageOutput{MessageId: id}, nil
}

func (q *fakeQueue) ReceiveMessageWithContext(ctx aws.Context, _ *sqs.ReceiveMessageInput, _ ...request.Option) (*sqs.ReceiveMessageOutput, error) {
	q.mu.Lock()
	messages := q.messages
	q.messages = nil
	q.mu.Unlock()

	if len(messages) == 0 {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	return &sqs.ReceiveMessageOutput{Messages: messages}, nil
}

func (q *fakeQueue) DeleteMessageWithContext(_ aws.Context, in *sqs.DeleteMessageInput, _ ...request.Option) (*sqs.DeleteMessageOutput, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.deleted = append(q.deleted, aws.StringValue(in.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

func (q *fakeQueue) GetQueueAttributesWithContext(_ aws.Context, _ *sqs.GetQueueAttributesInput, _ ...request.Option) (*sqs.GetQueueAttributesOutput, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	return &sqs.GetQueueAttributesOutput{Attributes: map[string]*string{
		sqs.QueueAttributeNameApproximateNumberOfMessages: aws.String("2"),
	}}, nil
}

func bought() entity.Event {
	return entity.Event{
		Sequence:   4,
		Type:       entity.ItemBought,
		Collection: "0x1111111111111111111111111111111111111111",
		AssetId:    0,
		Seller:     "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		Buyer:      "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
		Price:      big.NewInt(100000000000),
		Time:       time.Unix(1700000000, 0).UTC(),
	}
}

func TestSendAndPollEvent(t *testing.T) {
	queue := &fakeQueue{}
	m := NewMessenger(queue, map[Item]string{MarketplaceEvents: queueUrl})

	require.NoError(t, m.SendEvent(context.Background(), bought()))

	size, err := m.GetQueueSize(context.Background(), MarketplaceEvents)
	require.NoError(t, err)
	require.Equal(t, 2, size)

	ctx, cancel := context.WithCancel(context.Background())
	messages := make(chan *sqs.Message, 10)
	go m.PollMessages(ctx, MarketplaceEvents, messages)

	message := <-messages
	require.Equal(t, "ItemBought", aws.StringValue(message.MessageAttributes["type"].StringValue))
	require.Equal(t, "4", aws.StringValue(message.MessageAttributes["sequence"].StringValue))

	e, err := DecodeEvent(message)
	require.NoError(t, err)
	require.Equal(t, bought().Buyer, e.Buyer)
	require.Equal(t, "100000000000", e.Price.String())
	require.True(t, bought().Time.Equal(e.Time))

	require.NoError(t, m.DeleteMessage(context.Background(), MarketplaceEvents, message))
	require.Equal(t, []string{aws.StringValue(message.ReceiptHandle)}, queue.deleted)

	cancel()
	for range messages {
	}
}

func TestUnknownQueue(t *testing.T) {
	m := NewMessenger(&fakeQueue{}, map[Item]string{})

	require.ErrorIs(t, m.SendEvent(context.Background(), bought()), ErrUnknownQueue)

	_, err := m.GetQueueSize(context.Background(), MarketplaceEvents)
	require.ErrorIs(t, err, ErrUnknownQueue)

	messages := make(chan *sqs.Message)
	m.PollMessages(context.Background(), MarketplaceEvents, messages)
	_, open := <-messages
	require.False(t, open)
}

func TestListenForwardsEvents(t *testing.T) {
	queue := &fakeQueue{}
	m := NewMessenger(queue, map[Item]string{MarketplaceEvents: queueUrl})

	manager := event.NewManager()
	m.Listen(manager)
	manager.EmitEvent(event.ItemBoughtEvent, bought())
	manager.EmitEvent(event.ItemListedEvent, "ignored")
	manager.Close()

	require.Len(t, queue.messages, 1)
}

func TestSendFailure(t *testing.T) {
	boom := errors.New("throttled")
	m := NewMessenger(&fakeQueue{fail: boom}, map[Item]string{MarketplaceEvents: queueUrl})

	require.ErrorIs(t, m.SendEvent(context.Background(), bought()), boom)
}

func TestDecodeEventRejectsGarbage(t *testing.T) {
	_, err := DecodeEvent(&sqs.Message{Body: aws.String("{")})
	require.Error(t, err)
}
