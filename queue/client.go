package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/SeaRoll/bookshelf/config"
	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

//go:generate go run github.com/SeaRoll/interfacer/cmd -struct=pubsubClient -name=Queue

const (
	defaultPublishTimeout  = 5 * time.Second
	defaultFetchWait       = time.Second
	defaultCallbackTimeout = time.Minute
)

type pubsubClient struct {
	nc          *nats.Conn
	js          jetstream.JetStream
	stream      jetstream.Stream
	retryPolicy retrypolicy.RetryPolicy[any]
}

type NewPubsubClientParams struct {
	ConnectionUrl string        // NATS server connection URL
	Name          string        // Name of the JetStream stream
	TopicPrefix   string        // Prefix for topics in the stream
	MaxAge        time.Duration // Maximum age of messages in the stream, 0 keeps them forever
}

// NewQueue creates a client from the queue section of the configuration.
func NewQueue(cfg config.QueueConfig) (Queue, error) {
	maxAge, err := cfg.MaxAgeDuration()
	if err != nil {
		return nil, err
	}

	return NewPubsubClient(NewPubsubClientParams{
		ConnectionUrl: cfg.ConnectionUrl,
		Name:          cfg.Name,
		TopicPrefix:   cfg.TopicPrefix,
		MaxAge:        maxAge,
	})
}

// NewPubsubClient connects to NATS and creates or updates the stream holding
// every subject below the topic prefix.
func NewPubsubClient(params NewPubsubClientParams) (Queue, error) {
	nc, err := nats.Connect(
		params.ConnectionUrl,
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Error("Disconnected from NATS server", "error", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			slog.Info("Reconnected to NATS server", "url", c.ConnectedUrl())
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}
			slog.Error("NATS error", "error", err, "subject", subject)
		}),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS server: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultPublishTimeout)
	defer cancel()

	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      params.Name,
		Subjects:  []string{params.TopicPrefix + ".>"},
		Retention: jetstream.LimitsPolicy,
		MaxAge:    params.MaxAge,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create or update stream: %w", err)
	}

	return &pubsubClient{
		nc:          nc,
		js:          js,
		stream:      stream,
		retryPolicy: newRetryPolicy(),
	}, nil
}

func newRetryPolicy() retrypolicy.RetryPolicy[any] {
	return retrypolicy.Builder[any]().
		WithBackoff(time.Second, 30*time.Second).
		WithMaxRetries(5).
		Build()
}

// Publish publishes a message to the topic, retrying with backoff.
// Each attempt times out after timeout, 5 seconds when not given.
func (p *pubsubClient) Publish(topic string, message []byte, timeout ...time.Duration) error {
	attemptTimeout := defaultPublishTimeout
	if len(timeout) > 0 {
		attemptTimeout = timeout[0]
	}

	return failsafe.Run(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), attemptTimeout)
		defer cancel()

		if _, err := p.js.Publish(ctx, topic, message); err != nil {
			return fmt.Errorf("failed to publish message to topic %s: %w", topic, err)
		}
		return nil
	}, p.retryPolicy)
}

type Event struct {
	Index   int    // the index of the event in the batch
	Payload []byte // the data of the event
}

type ackFunc func() error

// CallbackFunc processes a batch of events and returns the indices of the
// events that were handled. Only those are acknowledged, the rest are redelivered.
// It is not called for empty batches.
type CallbackFunc func(ctx context.Context, events []Event) []int

type ConsumerConfig struct {
	ConsumerName    string         // Durable consumer name
	Topic           string         // The subject to listen on
	FetchLimit      int            // The maximum number of messages per batch
	Callback        CallbackFunc   // The callback function to process messages
	CallbackTimeout *time.Duration // Optional timeout for the callback function, defaults to 1 minute
	Wait            *time.Duration // Optional max wait for a batch, defaults to 1 second
}

func (c ConsumerConfig) fetchWaitAndCallbackTimeout() (time.Duration, time.Duration) {
	fetchWait := defaultFetchWait
	if c.Wait != nil {
		fetchWait = *c.Wait
	}

	callbackTimeout := defaultCallbackTimeout
	if c.CallbackTimeout != nil {
		callbackTimeout = *c.CallbackTimeout
	}

	return fetchWait, callbackTimeout
}

// Consume runs the consumer until ctx is done. It blocks, so run it in a goroutine.
// An error is returned only when the consumer could not be created or updated.
func (p *pubsubClient) Consume(ctx context.Context, cfg ConsumerConfig) error {
	cons, err := p.stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          cfg.ConsumerName,
		Durable:       cfg.ConsumerName,
		FilterSubject: cfg.Topic,
		AckPolicy:     jetstream.AckExplicitPolicy,
	})
	if err != nil {
		return fmt.Errorf("failed to create or update consumer: %w", err)
	}

	fetchWait, callbackTimeout := cfg.fetchWaitAndCallbackTimeout()
	log := slog.With("consumer", cfg.ConsumerName, "topic", cfg.Topic)

	for ctx.Err() == nil {
		msgs, err := p.fetchMessages(ctx, cons, cfg.FetchLimit, fetchWait)
		if err != nil {
			if ctx.Err() == nil {
				log.Error("Failed to fetch messages", "error", err)
			}
			continue
		}

		events := []Event{}
		acks := []ackFunc{}
		for msg := range msgs.Messages() {
			if err := msg.InProgress(); err != nil {
				log.Error("Error setting message in progress", "error", err)
				break
			}
			events = append(events, Event{
				Index:   len(events),
				Payload: msg.Data(),
			})
			acks = append(acks, msg.Ack)
		}

		if len(events) == 0 {
			continue
		}

		handled := performCallback(ctx, cfg.Callback, events, callbackTimeout)
		p.ackHandled(log, handled, acks)
	}

	return nil
}

func (p *pubsubClient) ackHandled(log *slog.Logger, handled []int, acks []ackFunc) {
	for _, idx := range handled {
		if idx < 0 || idx >= len(acks) {
			continue
		}
		if err := failsafe.Run(acks[idx], p.retryPolicy); err != nil {
			log.Error("Failed to acknowledge message", "error", err, "index", idx)
		}
	}
}

func (p *pubsubClient) fetchMessages(
	ctx context.Context,
	cons jetstream.Consumer,
	limit int,
	fetchWait time.Duration,
) (jetstream.MessageBatch, error) {
	var msgs jetstream.MessageBatch

	err := failsafe.NewExecutor[any](p.retryPolicy).WithContext(ctx).Run(func() error {
		var err error
		msgs, err = cons.Fetch(limit, jetstream.FetchMaxWait(fetchWait))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}

	return msgs, nil
}

func performCallback(ctx context.Context, callbackFn CallbackFunc, events []Event, callbackTimeout time.Duration) []int {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), callbackTimeout)
	defer cancel()
	return callbackFn(ctx, events)
}

// Close drains pending publishes and closes the connection.
func (p *pubsubClient) Close() {
	if err := p.nc.Drain(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		slog.Error("Failed to drain NATS connection", "error", err)
	}
	slog.Info("Disconnected from NATS")
}
