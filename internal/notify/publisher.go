// Package notify publishes account balance changed notifications to subscribers.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/goran-ethernal/ContractIndexor/internal/logger"
	"github.com/goran-ethernal/ContractIndexor/internal/types"
	"github.com/goran-ethernal/ContractIndexor/pkg/config"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
)

// Publisher delivers one balance changed notification per account.
type Publisher interface {
	PublishAccountBalanceChanged(ctx context.Context, account types.AccountAddress) error
	Backend() string
	Close() error
}

// BalanceChanged is the notification payload.
type BalanceChanged struct {
	Account types.AccountAddress `json:"account"`
}

func marshalBalanceChanged(account types.AccountAddress) ([]byte, error) {
	data, err := json.Marshal(BalanceChanged{Account: account})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal notification: %w", err)
	}
	return data, nil
}

// NewPublisher creates the publisher for the configured backend.
func NewPublisher(cfg config.NotificationsConfig, log *logger.Logger) (Publisher, error) {
	switch cfg.Backend {
	case config.NotificationBackendRedis:
		return NewRedisPublisher(redis.NewClient(cfg.Redis.Options()), cfg.Topic), nil
	case config.NotificationBackendNATS:
		return NewNATSPublisher(cfg.URL, cfg.Topic, log)
	case config.NotificationBackendNone, "":
		return NopPublisher{}, nil
	default:
		return nil, fmt.Errorf("unknown notification backend %q", cfg.Backend)
	}
}

// RedisPublisher publishes on a Redis Pub/Sub channel.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

// NewRedisPublisher creates a publisher on channel. It owns client.
func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	return &RedisPublisher{client: client, channel: channel}
}

func (p *RedisPublisher) PublishAccountBalanceChanged(ctx context.Context, account types.AccountAddress) error {
	data, err := marshalBalanceChanged(account)
	if err != nil {
		return err
	}
	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to redis channel %s: %w", p.channel, err)
	}
	return nil
}

func (p *RedisPublisher) Backend() string { return config.NotificationBackendRedis }

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

// NatsConn is the subset of *nats.Conn used for publishing.
type NatsConn interface {
	Publish(subject string, data []byte) error
	Close()
}

// NATSPublisher publishes on a core NATS subject.
type NATSPublisher struct {
	conn    NatsConn
	subject string
}

// NewNATSPublisher connects to url and publishes on subject.
func NewNATSPublisher(url, subject string, log *logger.Logger) (*NATSPublisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("contract-indexor"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second), //nolint:mnd
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warnw("disconnected from NATS", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Infow("reconnected to NATS", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}

	return NewNATSPublisherFromConn(conn, subject), nil
}

// NewNATSPublisherFromConn wraps an established connection.
func NewNATSPublisherFromConn(conn NatsConn, subject string) *NATSPublisher {
	return &NATSPublisher{conn: conn, subject: subject}
}

func (p *NATSPublisher) PublishAccountBalanceChanged(_ context.Context, account types.AccountAddress) error {
	data, err := marshalBalanceChanged(account)
	if err != nil {
		return err
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("failed to publish to NATS subject %s: %w", p.subject, err)
	}
	return nil
}

func (p *NATSPublisher) Backend() string { return config.NotificationBackendNATS }

func (p *NATSPublisher) Close() error {
	p.conn.Close()
	return nil
}

// NopPublisher drops every notification.
type NopPublisher struct{}

func (NopPublisher) PublishAccountBalanceChanged(context.Context, types.AccountAddress) error {
	return nil
}

func (NopPublisher) Backend() string { return config.NotificationBackendNone }

func (NopPublisher) Close() error { return nil }
