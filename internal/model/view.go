package model

import (
	"time"
)

// ConnectionStatus is the provider status shown on every view.
type ConnectionStatus string

const (
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
	StatusDisconnected ConnectionStatus = "disconnected"
)

// ViewState is what a dashboard page renders: its rows plus the loading,
// error and connectivity indicators.
type ViewState[T any] struct {
	View        string           `json:"view"`
	Status      ConnectionStatus `json:"status"`
	Loading     bool             `json:"loading"`
	Error       string           `json:"error,omitempty"`
	Warnings    []string         `json:"warnings,omitempty"`
	Block       uint64           `json:"block"`
	RefreshedAt *time.Time       `json:"refreshed_at,omitempty"`
	// Pending is set while an optimistic change awaits its receipt.
	Pending bool `json:"pending"`
	Data    T    `json:"data"`
}
