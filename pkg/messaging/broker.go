package messaging

import (
	"context"
)

// Broker publishes outbox events and view snapshots. Consumers subscribe
// to the channels below with their own clients.
type Broker interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Close() error
}

// Message is the envelope published for every outbox event and view snapshot.
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Channel names
const (
	ChannelTransactions = "ehr.transactions"
	ViewChannelPrefix   = "views."
)

// ViewChannel is the channel snapshots of a mounted view are published on.
func ViewChannel(viewKey string) string {
	return ViewChannelPrefix + viewKey
}
