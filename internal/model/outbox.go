package model

import (
	"encoding/json"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusRetry     OutboxStatus = "retry"
	OutboxStatusProcessed OutboxStatus = "processed"
	OutboxStatusFailed    OutboxStatus = "failed"
)

type OutboxEvent struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	EventType    string          `db:"event_type" json:"event_type"`
	Payload      json.RawMessage `db:"payload" json:"payload"`
	Status       string          `db:"status" json:"status"`
	ErrorMessage *string         `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	ProcessedAt  *time.Time      `db:"processed_at" json:"processed_at,omitempty"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
	RetryCount   int             `db:"retry_count" json:"retry_count"`
	RetryAt      *time.Time      `db:"retry_at" json:"retry_at,omitempty"`
}

// Outbox event types
const (
	EventTxConfirmed = "TX_CONFIRMED"
	EventTxFailed    = "TX_FAILED"
	// EventTxPending is recorded when no receipt arrived in time. The
	// transaction was relayed and may still be mined.
	EventTxPending = "TX_PENDING"
)

// TxEvent is the outbox payload for a relayed transaction.
type TxEvent struct {
	View        string          `json:"view"`
	Action      string          `json:"action"`
	Subject     string          `json:"subject"`
	TxHash      common.Hash     `json:"tx_hash"`
	From        *common.Address `json:"from,omitempty"`
	BlockNumber uint64          `json:"block_number,omitempty"`
	Error       string          `json:"error,omitempty"`
	At          time.Time       `json:"at"`
}
