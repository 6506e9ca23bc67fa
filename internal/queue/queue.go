// Package queue provides a durable, at-least-once job queue over SQS.
// Jobs are named, carry a small JSON payload, and may be delivered to their
// handler more than once; handlers must be idempotent. A job that keeps
// failing is abandoned after a bounded number of deliveries with an
// operator-visible error, never dropped silently.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"
)

// SQSAPI abstracts SQS operations for dependency inversion.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// Job is a single delivery of a queued unit of work.
type Job struct {
	// ID identifies the logical job across redeliveries.
	ID string
	// Name is the registered job type, e.g. "indexModel".
	Name string
	// Data is the job payload as enqueued.
	Data json.RawMessage
	// ReceiveCount is how many times this job has been delivered,
	// including this delivery.
	ReceiveCount int
}

// Handler processes one job delivery. Returning an error leaves the job on
// the queue for redelivery until the retry budget runs out.
type Handler func(ctx context.Context, job Job) error

// envelope is the SQS message body.
type envelope struct {
	ID   string          `json:"id"`
	Job  string          `json:"job"`
	Data json.RawMessage `json:"data"`
}

const (
	defaultMaxReceives = 5
	receiveBatchSize   = 10
	longPollSeconds    = 20

	// receiveErrorDelay spaces out receive attempts when the queue itself
	// is failing (bad credentials, missing queue). Long polling only slows
	// the happy path, not a hard receive error.
	receiveErrorDelay = 5 * time.Second
)

// Queue is an SQS-backed job queue. Construct one per logical queue and
// pass it down explicitly; it holds no process-wide state.
type Queue struct {
	client      SQSAPI
	queueURL    string
	logger      *slog.Logger
	maxReceives int
	sleepFunc   func(context.Context, time.Duration)

	mu          sync.RWMutex
	handlers    map[string]Handler
	onFailed    func(Job, error)
	onCompleted func(Job)
}

// New creates a Queue bound to an SQS queue URL.
func New(client SQSAPI, queueURL string, logger *slog.Logger) *Queue {
	return &Queue{
		client:      client,
		queueURL:    queueURL,
		logger:      logger,
		maxReceives: defaultMaxReceives,
		sleepFunc:   sleepContext,
		handlers:    make(map[string]Handler),
	}
}

// SetMaxReceives bounds the retry budget per job.
func (q *Queue) SetMaxReceives(n int) {
	if n > 0 {
		q.maxReceives = n
	}
}

// OnFailed registers an observability callback invoked on every failed
// delivery, terminal or not.
func (q *Queue) OnFailed(fn func(Job, error)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onFailed = fn
}

// OnCompleted registers an observability callback invoked after every
// successful delivery.
func (q *Queue) OnCompleted(fn func(Job)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onCompleted = fn
}

// Enqueue adds a job of the given type. The payload must marshal to JSON.
func (q *Queue) Enqueue(ctx context.Context, job string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("queue: encode %s payload: %w", job, err)
	}

	body, err := json.Marshal(envelope{
		ID:   uuid.NewString(),
		Job:  job,
		Data: payload,
	})
	if err != nil {
		return fmt.Errorf("queue: encode %s envelope: %w", job, err)
	}

	_, err = q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("queue: enqueue %s: %w", job, err)
	}
	return nil
}

// Process registers the handler for a job type. Registering the same type
// again replaces the previous handler, so repeated worker startup is safe.
func (q *Queue) Process(job string, h Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[job] = h
}

// Run consumes the queue until ctx is cancelled. A failed receive is
// retried after a delay rather than immediately, so a persistently broken
// queue does not spin the loop.
func (q *Queue) Run(ctx context.Context) error {
	for {
		if err := q.poll(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			q.logger.ErrorContext(ctx, "Queue receive failed",
				slog.String("error", err.Error()),
			)
			q.sleepFunc(ctx, receiveErrorDelay)
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// poll performs one long-poll receive and dispatches the batch
// concurrently.
func (q *Queue) poll(ctx context.Context) error {
	out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.queueURL),
		MaxNumberOfMessages: receiveBatchSize,
		WaitTimeSeconds:     longPollSeconds,
		MessageSystemAttributeNames: []types.MessageSystemAttributeName{
			types.MessageSystemAttributeNameApproximateReceiveCount,
		},
	})
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, msg := range out.Messages {
		msg := msg
		g.Go(func() error {
			q.dispatch(ctx, msg)
			return nil
		})
	}
	return g.Wait()
}

// dispatch routes one message to its handler and settles it.
func (q *Queue) dispatch(ctx context.Context, msg types.Message) {
	tracer := otel.Tracer("searchsync/queue")

	var env envelope
	if msg.Body == nil || json.Unmarshal([]byte(*msg.Body), &env) != nil || env.Job == "" {
		// A body we cannot parse will never become parseable; retrying
		// is pointless.
		q.abandon(ctx, msg, Job{ID: aws.ToString(msg.MessageId)},
			errors.New("queue: unparseable message body"))
		return
	}

	job := Job{
		ID:           env.ID,
		Name:         env.Job,
		Data:         env.Data,
		ReceiveCount: receiveCount(msg),
	}

	q.mu.RLock()
	handler, ok := q.handlers[job.Name]
	q.mu.RUnlock()
	if !ok {
		q.abandon(ctx, msg, job, fmt.Errorf("queue: no handler registered for %q", job.Name))
		return
	}

	ctx, span := tracer.Start(ctx, "queue."+job.Name)
	err := handler(ctx, job)
	if err != nil {
		span.RecordError(err)
	}
	span.End()

	if err == nil {
		q.ack(ctx, msg)
		q.mu.RLock()
		completed := q.onCompleted
		q.mu.RUnlock()
		if completed != nil {
			completed(job)
		}
		return
	}

	if job.ReceiveCount >= q.maxReceives {
		q.abandon(ctx, msg, job, err)
		return
	}

	// Leave the message in place: the visibility timeout expires and the
	// queue redelivers it. At-least-once, handler idempotence required.
	q.logger.WarnContext(ctx, "Job failed, awaiting redelivery",
		slog.String("job", job.Name),
		slog.String("job_id", job.ID),
		slog.Int("receive_count", job.ReceiveCount),
		slog.String("error", err.Error()),
	)
	q.notifyFailed(job, err)
}

// abandon settles a job that will never succeed: it is removed from the
// queue and the failure is surfaced to the operator error channel.
func (q *Queue) abandon(ctx context.Context, msg types.Message, job Job, err error) {
	q.logger.ErrorContext(ctx, "Job abandoned",
		slog.String("job", job.Name),
		slog.String("job_id", job.ID),
		slog.Int("receive_count", job.ReceiveCount),
		slog.String("error", err.Error()),
	)
	q.notifyFailed(job, err)
	q.ack(ctx, msg)
}

func (q *Queue) notifyFailed(job Job, err error) {
	q.mu.RLock()
	failed := q.onFailed
	q.mu.RUnlock()
	if failed != nil {
		failed(job, err)
	}
}

func (q *Queue) ack(ctx context.Context, msg types.Message) {
	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.queueURL),
		ReceiptHandle: msg.ReceiptHandle,
	})
	if err != nil {
		// The message will be redelivered; the handler runs again. This
		// is the at-least-once window.
		q.logger.WarnContext(ctx, "Failed to delete settled message",
			slog.String("message_id", aws.ToString(msg.MessageId)),
			slog.String("error", err.Error()),
		)
	}
}

func receiveCount(msg types.Message) int {
	raw, ok := msg.Attributes[string(types.MessageSystemAttributeNameApproximateReceiveCount)]
	if !ok {
		return 1
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 1
	}
	return n
}
