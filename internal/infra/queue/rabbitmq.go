package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"autonews-pipeline/internal/domain"
)

// RabbitJobQueue реализует очередь задач конвейера через AMQP.
type RabbitJobQueue struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string

	mu         sync.Mutex
	deliveries <-chan amqp.Delivery
}

// NewRabbitJobQueue подключается к RabbitMQ и объявляет долговечную очередь.
func NewRabbitJobQueue(amqpURL, queue string) (*RabbitJobQueue, error) {
	if amqpURL == "" {
		return nil, errors.New("amqp url is empty")
	}
	if queue == "" {
		return nil, errors.New("queue name is empty")
	}
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("amqp declare %s: %w", queue, err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("amqp qos: %w", err)
	}
	return &RabbitJobQueue{conn: conn, ch: ch, queue: queue}, nil
}

// Enqueue публикует задачу в очередь.
func (q *RabbitJobQueue) Enqueue(ctx context.Context, job domain.PipelineJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	return q.ch.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         payload,
	})
}

// Receive читает задачу из очереди. Подтверждение управляет ack/nack доставки.
func (q *RabbitJobQueue) Receive(ctx context.Context) (domain.PipelineJob, domain.JobAckFunc, error) {
	deliveries, err := q.consumer()
	if err != nil {
		return domain.PipelineJob{}, nil, err
	}
	for {
		select {
		case <-ctx.Done():
			return domain.PipelineJob{}, nil, ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return domain.PipelineJob{}, nil, errors.New("amqp: канал доставки закрыт")
			}
			var job domain.PipelineJob
			if err := json.Unmarshal(d.Body, &job); err != nil {
				// Нечитаемое сообщение не переигрываем.
				_ = d.Nack(false, false)
				continue
			}
			delivery := d
			ack := func(success bool) error {
				if success {
					return delivery.Ack(false)
				}
				return delivery.Nack(false, true)
			}
			return job, ack, nil
		}
	}
}

// Close закрывает канал и соединение.
func (q *RabbitJobQueue) Close() error {
	if err := q.ch.Close(); err != nil {
		_ = q.conn.Close()
		return err
	}
	return q.conn.Close()
}

func (q *RabbitJobQueue) consumer() (<-chan amqp.Delivery, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.deliveries != nil {
		return q.deliveries, nil
	}
	deliveries, err := q.ch.Consume(q.queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("amqp consume: %w", err)
	}
	q.deliveries = deliveries
	return q.deliveries, nil
}
