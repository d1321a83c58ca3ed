package model

import (
	"github.com/ethereum/go-ethereum/common"
)

// LogEntry is one decoded contract event. Args holds both indexed and
// non-indexed arguments keyed by their ABI names.
type LogEntry struct {
	Contract    common.Address         `json:"contract"`
	Event       string                 `json:"event"`
	BlockNumber uint64                 `json:"block_number"`
	LogIndex    uint                   `json:"log_index"`
	TxHash      common.Hash            `json:"tx_hash"`
	Args        map[string]interface{} `json:"args"`
}

// Before reports whether e sorts strictly before o in chain order.
func (e LogEntry) Before(o LogEntry) bool {
	if e.BlockNumber != o.BlockNumber {
		return e.BlockNumber < o.BlockNumber
	}
	return e.LogIndex < o.LogIndex
}

// Address returns the named argument as an address.
func (e LogEntry) Address(name string) (common.Address, bool) {
	v, ok := e.Args[name]
	if !ok {
		return common.Address{}, false
	}
	addr, ok := v.(common.Address)
	return addr, ok
}

// Bytes32 returns the named argument as a 32 byte word.
func (e LogEntry) Bytes32(name string) (common.Hash, bool) {
	v, ok := e.Args[name]
	if !ok {
		return common.Hash{}, false
	}
	switch b := v.(type) {
	case [32]byte:
		return common.Hash(b), true
	case common.Hash:
		return b, true
	}
	return common.Hash{}, false
}

// String returns the named argument as a string, empty when absent.
func (e LogEntry) String(name string) string {
	if s, ok := e.Args[name].(string); ok {
		return s
	}
	return ""
}
