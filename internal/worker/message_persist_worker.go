package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"hybridrag/internal/model"
	rabbitmqClient "hybridrag/internal/platform/rabbitmq"
)

var errEmptyTurn = errors.New("chat turn has no session or content")

// MessageStore is the write side of the message repository.
type MessageStore interface {
	Create(message *model.Message) error
}

// MessagePersistWorker drains the chat-turn queue into the database.
type MessagePersistWorker struct {
	conn      *amqp.Connection
	repo      MessageStore
	queueName string
	logger    *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewMessagePersistWorker(conn *amqp.Connection, repo MessageStore, queueName string, logger *zap.Logger) *MessagePersistWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MessagePersistWorker{
		conn:      conn,
		repo:      repo,
		queueName: queueName,
		logger:    logger.With(zap.String("component", "message_persist_worker")),
	}
}

func (w *MessagePersistWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	ch, err := w.conn.Channel()
	if err != nil {
		return fmt.Errorf("open worker channel failed: %w", err)
	}
	if err := rabbitmqClient.DeclareQueue(ch, w.queueName); err != nil {
		_ = ch.Close()
		return err
	}
	if err := ch.Qos(16, 0, false); err != nil {
		_ = ch.Close()
		return fmt.Errorf("set worker qos failed: %w", err)
	}
	deliveries, err := ch.Consume(w.queueName, "", false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					w.logger.Warn("delivery channel closed")
					return
				}
				if err := w.persist(d.Body); err != nil {
					w.logger.Error("persist chat turn failed", zap.Error(err))
					_ = d.Nack(false, false)
					continue
				}
				_ = d.Ack(false)
			}
		}
	}()

	w.logger.Info("worker started", zap.String("queue", w.queueName))
	return nil
}

func (w *MessagePersistWorker) persist(body []byte) error {
	var msg model.Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("decode chat turn failed: %w", err)
	}
	if msg.SessionID == 0 || msg.Content == "" {
		return errEmptyTurn
	}
	return w.repo.Create(&msg)
}

func (w *MessagePersistWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

// InlinePublisher persists chat turns synchronously. It stands in for the
// queue when no broker is configured.
type InlinePublisher struct {
	repo MessageStore
}

func NewInlinePublisher(repo MessageStore) *InlinePublisher {
	return &InlinePublisher{repo: repo}
}

func (p *InlinePublisher) Publish(_ context.Context, msg model.Message) error {
	return p.repo.Create(&msg)
}
