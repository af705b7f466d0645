package external

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	coinExchange    = "economy.coins"
	auctionExchange = "economy.auctions"
)

// EventPublisher emits economy events for downstream consumers (game
// servers, analytics). Publishing is best effort: a failed publish never
// rolls back the balance change it describes.
type EventPublisher interface {
	PublishCoinEvent(ctx context.Context, event *CoinEvent) error
	PublishAuctionEvent(ctx context.Context, event *AuctionEvent) error
	Close() error
}

type CoinEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"` // "credit", "debit", "transfer"
	AccountID string    `json:"account_id"`
	Amount    int64     `json:"amount"`
	Balance   int64     `json:"balance"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type AuctionEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"` // "created", "bid", "completed", "cancelled", "expired"
	AuctionID string    `json:"auction_id"`
	SellerID  string    `json:"seller_id"`
	BidderID  string    `json:"bidder_id,omitempty"`
	ItemID    string    `json:"item_id"`
	Amount    int64     `json:"amount,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type EventPublisherConfig struct {
	URL           string
	RetryAttempts int
	RetryDelay    time.Duration
}

type eventPublisher struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	config  *EventPublisherConfig
}

// NewEventPublisher connects to RabbitMQ and declares the economy
// exchanges.
func NewEventPublisher(config *EventPublisherConfig) (EventPublisher, error) {
	if config.RetryAttempts == 0 {
		config.RetryAttempts = 3
	}
	if config.RetryDelay == 0 {
		config.RetryDelay = time.Second
	}

	p := &eventPublisher{config: config}
	if err := p.connect(); err != nil {
		return nil, err
	}
	if err := p.setupExchanges(); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

func (p *eventPublisher) connect() error {
	var err error
	p.conn, err = amqp.Dial(p.config.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	p.channel, err = p.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	return nil
}

func (p *eventPublisher) setupExchanges() error {
	for _, name := range []string{coinExchange, auctionExchange} {
		err := p.channel.ExchangeDeclare(
			name,    // name
			"topic", // type
			true,    // durable
			false,   // auto-deleted
			false,   // internal
			false,   // no-wait
			nil,     // arguments
		)
		if err != nil {
			return fmt.Errorf("failed to declare exchange %s: %w", name, err)
		}
	}
	return nil
}

func (p *eventPublisher) PublishCoinEvent(ctx context.Context, event *CoinEvent) error {
	routingKey := fmt.Sprintf("coins.%s.%s", event.EventType, event.AccountID)
	return p.publish(ctx, coinExchange, routingKey, event)
}

func (p *eventPublisher) PublishAuctionEvent(ctx context.Context, event *AuctionEvent) error {
	routingKey := fmt.Sprintf("auction.%s", event.EventType)
	return p.publish(ctx, auctionExchange, routingKey, event)
}

func (p *eventPublisher) publish(ctx context.Context, exchange, routingKey string, message interface{}) error {
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	publishing := amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		Timestamp:    time.Now(),
		MessageId:    uuid.New().String(),
		DeliveryMode: amqp.Persistent,
	}

	var publishErr error
	for attempt := 0; attempt < p.config.RetryAttempts; attempt++ {
		publishErr = p.channel.PublishWithContext(ctx, exchange, routingKey, false, false, publishing)
		if publishErr == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.config.RetryDelay):
		}
	}
	return fmt.Errorf("failed to publish to %s after %d attempts: %w", exchange, p.config.RetryAttempts, publishErr)
}

func (p *eventPublisher) Close() error {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// NoopEventPublisher drops every event. Used when messaging is disabled
// and in tests.
type NoopEventPublisher struct{}

func (NoopEventPublisher) PublishCoinEvent(context.Context, *CoinEvent) error       { return nil }
func (NoopEventPublisher) PublishAuctionEvent(context.Context, *AuctionEvent) error { return nil }
func (NoopEventPublisher) Close() error                                             { return nil }
