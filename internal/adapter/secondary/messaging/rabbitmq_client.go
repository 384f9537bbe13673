package messaging

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/tasca/payment-gateway/internal/core"
	"github.com/tasca/payment-gateway/internal/port/output"
)

const (
	ExchangeName = "payments"

	MonitorQueueName  = "payment_monitoring"
	CreatedRoutingKey = "payment.created"

	StatusQueueName  = "payment_status_events"
	StatusRoutingKey = "payment.status"

	PrefetchCount = 10
)

// PaymentCreatedMessage asks a worker to monitor a pending session
type PaymentCreatedMessage struct {
	Reference string    `json:"reference"`
	Timestamp time.Time `json:"timestamp"`
}

// StatusChangedMessage announces a status transition
type StatusChangedMessage struct {
	Reference string             `json:"reference"`
	From      core.PaymentStatus `json:"from"`
	To        core.PaymentStatus `json:"to"`
	At        time.Time          `json:"at"`
}

// RabbitMQClient is a secondary adapter that implements PaymentMessaging output port
type RabbitMQClient struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

// NewRabbitMQClient creates a new RabbitMQ client (returns interface for ports)
func NewRabbitMQClient(amqpURL string) (output.PaymentMessaging, error) {
	return NewRabbitMQClientConcrete(amqpURL)
}

// NewRabbitMQClientConcrete creates a new RabbitMQ client (returns concrete type for workers)
func NewRabbitMQClientConcrete(amqpURL string) (*RabbitMQClient, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := declareTopology(channel); err != nil {
		channel.Close()
		conn.Close()
		return nil, err
	}

	return &RabbitMQClient{
		conn:    conn,
		channel: channel,
	}, nil
}

func declareTopology(channel *amqp.Channel) error {
	err := channel.ExchangeDeclare(
		ExchangeName,
		"direct",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	bindings := []struct{ queue, key string }{
		{MonitorQueueName, CreatedRoutingKey},
		{StatusQueueName, StatusRoutingKey},
	}
	for _, b := range bindings {
		_, err = channel.QueueDeclare(
			b.queue,
			true,  // durable
			false, // delete when unused
			false, // exclusive
			false, // no-wait
			nil,
		)
		if err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", b.queue, err)
		}
		if err := channel.QueueBind(b.queue, b.key, ExchangeName, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue %s: %w", b.queue, err)
		}
	}
	return nil
}

// PublishPaymentCreated publishes a monitoring request for a pending session
func (c *RabbitMQClient) PublishPaymentCreated(reference string) error {
	if err := c.publish(CreatedRoutingKey, PaymentCreatedMessage{Reference: reference, Timestamp: time.Now()}); err != nil {
		return err
	}
	log.Printf("Published payment.created for reference: %s", reference)
	return nil
}

// PublishStatusChanged publishes a status transition event
func (c *RabbitMQClient) PublishStatusChanged(t core.Transition) error {
	msg := StatusChangedMessage{Reference: t.Reference, From: t.From, To: t.To, At: t.At}
	if err := c.publish(StatusRoutingKey, msg); err != nil {
		return err
	}
	log.Printf("Published payment.status %s -> %s for reference: %s", t.From, t.To, t.Reference)
	return nil
}

func (c *RabbitMQClient) publish(routingKey string, message any) error {
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	err = c.channel.Publish(
		ExchangeName,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent, // Make message persistent
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// ConsumePaymentCreated starts consuming monitoring requests
func (c *RabbitMQClient) ConsumePaymentCreated(handler func(PaymentCreatedMessage) error) error {
	err := c.channel.Qos(
		PrefetchCount,
		0,     // prefetch size
		false, // global
	)
	if err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := c.channel.Consume(
		MonitorQueueName,
		"",    // consumer tag
		false, // auto-ack (we'll manually ack after processing)
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	log.Println("Started consuming payment.created messages...")

	go func() {
		for msg := range msgs {
			var created PaymentCreatedMessage
			if err := json.Unmarshal(msg.Body, &created); err != nil {
				log.Printf("Error unmarshaling message: %v", err)
				msg.Nack(false, false) // Malformed, drop it
				continue
			}

			if err := handler(created); err != nil {
				log.Printf("Error handling payment %s: %v", created.Reference, err)
				// Terminal or unknown sessions will never need monitoring
				if isTerminalError(err) {
					msg.Ack(false)
				} else {
					msg.Nack(false, true) // Requeue for retry
				}
				continue
			}

			msg.Ack(false)
		}
	}()

	return nil
}

// Close closes the RabbitMQ connection
func (c *RabbitMQClient) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// isTerminalError checks if an error means the message can never succeed
func isTerminalError(err error) bool {
	return errors.Is(err, core.ErrTerminalState) || errors.Is(err, core.ErrNotFound)
}
