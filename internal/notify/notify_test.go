package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/goran-ethernal/ContractIndexor/internal/logger"
	"github.com/goran-ethernal/ContractIndexor/internal/types"
	"github.com/goran-ethernal/ContractIndexor/pkg/config"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = types.AccountAddress{0xa}
	bob   = types.AccountAddress{0xb}
)

type fakeNatsConn struct {
	mu       sync.Mutex
	subjects []string
	payloads [][]byte
	err      error
	closed   bool
}

func (c *fakeNatsConn) Publish(subject string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.subjects = append(c.subjects, subject)
	c.payloads = append(c.payloads, data)
	return nil
}

func (c *fakeNatsConn) Close() { c.closed = true }

type recordingPublisher struct {
	mu        sync.Mutex
	published []types.AccountAddress
	fail      map[types.AccountAddress]bool
	closed    bool
}

func (p *recordingPublisher) PublishAccountBalanceChanged(_ context.Context, account types.AccountAddress) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail[account] {
		return errors.New("subscriber unavailable")
	}
	p.published = append(p.published, account)
	return nil
}

func (p *recordingPublisher) Backend() string { return "test" }

func (p *recordingPublisher) Close() error {
	p.closed = true
	return nil
}

func TestRedisPublisher(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	subscriber := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer subscriber.Close()

	sub := subscriber.Subscribe(ctx, "balances")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	p := NewRedisPublisher(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "balances")
	defer p.Close()

	require.NoError(t, p.PublishAccountBalanceChanged(ctx, alice))

	select {
	case msg := <-sub.Channel():
		var payload BalanceChanged
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &payload))
		assert.Equal(t, alice, payload.Account)
		assert.Equal(t, "balances", msg.Channel)
	case <-time.After(2 * time.Second):
		t.Fatal("notification not received")
	}
}

func TestNATSPublisher(t *testing.T) {
	conn := &fakeNatsConn{}
	p := NewNATSPublisherFromConn(conn, "contracts.account.balance-changed")

	require.NoError(t, p.PublishAccountBalanceChanged(context.Background(), bob))
	require.Len(t, conn.payloads, 1)
	assert.Equal(t, "contracts.account.balance-changed", conn.subjects[0])
	assert.JSONEq(t, `{"account":"`+bob.String()+`"}`, string(conn.payloads[0]))

	conn.err = errors.New("nats: connection closed")
	require.ErrorIs(t, p.PublishAccountBalanceChanged(context.Background(), bob), conn.err)

	require.NoError(t, p.Close())
	assert.True(t, conn.closed)
}

func TestNewPublisher(t *testing.T) {
	log := logger.NewNopLogger()

	p, err := NewPublisher(config.NotificationsConfig{Backend: config.NotificationBackendNone}, log)
	require.NoError(t, err)
	assert.Equal(t, config.NotificationBackendNone, p.Backend())

	mr := miniredis.RunT(t)
	cfg := config.NotificationsConfig{
		Backend: config.NotificationBackendRedis,
		Redis:   &config.RedisConfig{Address: mr.Addr()},
	}
	cfg.ApplyDefaults()
	p, err = NewPublisher(cfg, log)
	require.NoError(t, err)
	assert.Equal(t, config.NotificationBackendRedis, p.Backend())
	require.NoError(t, p.Close())

	_, err = NewPublisher(config.NotificationsConfig{Backend: "kafka"}, log)
	require.Error(t, err)
}

func TestDispatcher(t *testing.T) {
	publisher := &recordingPublisher{fail: map[types.AccountAddress]bool{bob: true}}
	d := NewDispatcher(publisher, 2, logger.NewNopLogger())

	d.NotifyBalanceChanged([]types.AccountAddress{alice, bob})
	d.NotifyBalanceChanged(nil)

	require.NoError(t, d.Close())
	assert.Equal(t, []types.AccountAddress{alice}, publisher.published)
	assert.True(t, publisher.closed)
}
