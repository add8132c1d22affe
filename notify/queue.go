package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	log "github.com/sirupsen/logrus"
)

// Sink delivers a notification somewhere.
type Sink interface {
	Deliver(ctx context.Context, env Envelope) error
}

type queueClient interface {
	EnqueueMessage(ctx context.Context, content string, o *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error)
}

// QueueSink enqueues envelopes on an Azure Storage queue read by the push
// sender.
type QueueSink struct {
	queue queueClient
	ttl   int32
}

// NewQueueSink connects to the named queue.
func NewQueueSink(connStr, queueName string) (*QueueSink, error) {
	queueClientOptions := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 30,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	q, err := azqueue.NewQueueClientFromConnectionString(connStr, queueName, &queueClientOptions)
	if err != nil {
		return nil, err
	}
	// Push notifications are worthless after a day.
	return &QueueSink{queue: q, ttl: int32((24 * time.Hour).Seconds())}, nil
}

func (q *QueueSink) Deliver(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	opts := &azqueue.EnqueueMessageOptions{}
	if q.ttl > 0 {
		opts.TimeToLive = &q.ttl
	}
	_, err = q.queue.EnqueueMessage(ctx, string(data), opts)
	return err
}

// LogSink writes every envelope to the logger.
type LogSink struct {
	Logger *log.Logger
}

func (l LogSink) Deliver(_ context.Context, env Envelope) error {
	l.Logger.WithFields(log.Fields{
		"topic": env.Topic,
		"title": env.Notification.Title,
		"tag":   env.Notification.Tag,
	}).Info(env.Notification.Body)
	return nil
}
