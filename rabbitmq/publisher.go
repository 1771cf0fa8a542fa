// Package rabbitmq publishes analysis-completed notifications so
// downstream consumers (alerting, dashboards) can react without
// polling the API.
package rabbitmq

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/streadway/amqp"

	"camera-analyze-service/models"
)

type Publisher struct {
	url        string
	exchange   string
	routingKey string

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
}

// CompletedMessage is the payload published after each analysis turn.
type CompletedMessage struct {
	SessionID    string    `json:"session_id"`
	TurnNumber   int       `json:"turn_number"`
	Query        string    `json:"query"`
	TotalImages  int       `json:"total_images"`
	MatchesFound int       `json:"matches_found"`
	IsContextual bool      `json:"is_contextual"`
	Timestamp    time.Time `json:"timestamp"`
}

func NewPublisher(url, exchange, routingKey string) (*Publisher, error) {
	p := &Publisher{
		url:        url,
		exchange:   exchange,
		routingKey: routingKey,
	}
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Publisher) connect() error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	if err := channel.ExchangeDeclare(
		p.exchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	p.conn = conn
	p.channel = channel
	log.WithField("exchange", p.exchange).Info("connected to RabbitMQ")
	return nil
}

// PublishCompleted announces a finished analysis turn. The connection
// is re-established once on failure before giving up.
func (p *Publisher) PublishCompleted(sessionID string, turnNumber, totalImages, matchesFound int, query string, contextual bool) error {
	msg := CompletedMessage{
		SessionID:    sessionID,
		TurnNumber:   turnNumber,
		Query:        query,
		TotalImages:  totalImages,
		MatchesFound: matchesFound,
		IsContextual: contextual,
		Timestamp:    time.Now().UTC(),
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.publish(body); err != nil {
		log.WithError(err).Warn("publish failed, reconnecting")
		p.closeLocked()
		if err := p.connect(); err != nil {
			return err
		}
		return p.publish(body)
	}
	return nil
}

// PublishRunCompleted is a convenience wrapper around PublishCompleted
// for a stored run result.
func (p *Publisher) PublishRunCompleted(sessionID string, turnNumber int, query string, run *models.RunResult) error {
	if run == nil {
		return nil
	}
	return p.PublishCompleted(sessionID, turnNumber, run.TotalImages, run.MatchesFound, query, run.IsContextual)
}

func (p *Publisher) publish(body []byte) error {
	if p.channel == nil {
		return fmt.Errorf("channel not open")
	}
	return p.channel.Publish(
		p.exchange,
		p.routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
}

func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeLocked()
}

func (p *Publisher) closeLocked() {
	if p.channel != nil {
		p.channel.Close()
		p.channel = nil
	}
	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}
}
