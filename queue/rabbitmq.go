// Package queue declares the RabbitMQ topology for outbound calls and
// moves call jobs through it.
package queue

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"runwayiq/config"
)

const RoutingKey = "call.dial"

// Topology names the exchange, work queue and dead-letter pair
type Topology struct {
	Exchange string
	Queue    string
	DLX      string
	DLQ      string
}

func TopologyFor(cfg config.RabbitMQConfig) Topology {
	exchange := cfg.Exchange
	if exchange == "" {
		exchange = "calls"
	}
	q := cfg.Queue
	if q == "" {
		q = "calls.dial"
	}
	return Topology{
		Exchange: exchange,
		Queue:    q,
		DLX:      exchange + ".dlx",
		DLQ:      q + ".dlq",
	}
}

type RabbitMQ struct {
	Conn     *amqp.Connection
	Ch       *amqp.Channel
	Topology Topology
}

func NewRabbitMQ(cfg config.RabbitMQConfig) (*RabbitMQ, error) {
	if cfg.URL == "" {
		return nil, config.NotConfigured("RabbitMQ")
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	topo := TopologyFor(cfg)
	if err := setupTopology(ch, topo); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare topology: %w", err)
	}

	return &RabbitMQ{Conn: conn, Ch: ch, Topology: topo}, nil
}

type declarer interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

// setupTopology declares the dead-letter side first so the work queue can point at it
func setupTopology(ch declarer, t Topology) error {
	if err := ch.ExchangeDeclare(t.DLX, "direct", true, false, false, false, nil); err != nil {
		return err
	}
	if _, err := ch.QueueDeclare(t.DLQ, true, false, false, false, nil); err != nil {
		return err
	}
	if err := ch.QueueBind(t.DLQ, RoutingKey, t.DLX, false, nil); err != nil {
		return err
	}

	args := amqp.Table{
		"x-dead-letter-exchange":    t.DLX,
		"x-dead-letter-routing-key": RoutingKey,
	}
	if err := ch.ExchangeDeclare(t.Exchange, "direct", true, false, false, false, nil); err != nil {
		return err
	}
	if _, err := ch.QueueDeclare(t.Queue, true, false, false, false, args); err != nil {
		return err
	}
	return ch.QueueBind(t.Queue, RoutingKey, t.Exchange, false, nil)
}

// Healthy reports whether the connection is still open
func (r *RabbitMQ) Healthy() bool {
	return r != nil && r.Conn != nil && !r.Conn.IsClosed()
}

func (r *RabbitMQ) Close() error {
	if r.Ch != nil {
		_ = r.Ch.Close()
	}
	if r.Conn != nil {
		return r.Conn.Close()
	}
	return nil
}
