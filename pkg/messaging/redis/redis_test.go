package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/ehr-chainview/pkg/circuitbreaker"
	"github.com/jwalitptl/ehr-chainview/pkg/messaging"
)

func TestPublishDeliversJSONEnvelope(t *testing.T) {
	mr := miniredis.RunT(t)
	broker, err := NewRedisBroker(Config{URL: "redis://" + mr.Addr(), PoolSize: 2}, nil)
	require.NoError(t, err)
	defer broker.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer client.Close()
	sub := client.Subscribe(ctx, messaging.ViewChannel("hospitals"))
	defer sub.Close()
	_, err = sub.Receive(ctx)
	require.NoError(t, err)

	err = broker.Publish(ctx, messaging.ViewChannel("hospitals"), messaging.Message{Type: "VIEW_SNAPSHOT", Payload: map[string]int{"block": 7}})
	require.NoError(t, err)

	select {
	case msg := <-sub.Channel():
		assert.Equal(t, "views.hospitals", msg.Channel)
		var got struct {
			Type    string         `json:"type"`
			Payload map[string]int `json:"payload"`
		}
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		assert.Equal(t, "VIEW_SNAPSHOT", got.Type)
		assert.Equal(t, 7, got.Payload["block"])
	case <-ctx.Done():
		t.Fatal("message was not delivered")
	}
}

func TestNewRedisBrokerErrors(t *testing.T) {
	_, err := NewRedisBroker(Config{URL: "not a url"}, nil)
	assert.Error(t, err)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()
	_, err = NewRedisBroker(Config{URL: "redis://" + addr}, nil)
	assert.Error(t, err)
}

func TestPublishOpensBreakerWhenRedisIsDown(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr(), MaxRetries: -1})
	broker := NewRedisBrokerFromClient(client, nil)
	defer broker.Close()
	mr.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		err := broker.Publish(ctx, messaging.ChannelTransactions, messaging.Message{Type: "TX_CONFIRMED"})
		require.Error(t, err)
		assert.NotErrorIs(t, err, circuitbreaker.ErrOpen)
	}
	err = broker.Publish(ctx, messaging.ChannelTransactions, messaging.Message{Type: "TX_CONFIRMED"})
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
}

func TestPublishRejectsUnencodableMessage(t *testing.T) {
	mr := miniredis.RunT(t)
	broker := NewRedisBrokerFromClient(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}), nil)
	defer broker.Close()

	err := broker.Publish(context.Background(), messaging.ChannelTransactions, make(chan int))
	assert.Error(t, err)
}
