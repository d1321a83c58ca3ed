package model

import (
	"github.com/ethereum/go-ethereum/common"
)

// AuditEntry is one row of the on-chain activity log.
type AuditEntry struct {
	Event     string                 `json:"event"`
	Entity    string                 `json:"entity"`
	Title     string                 `json:"title"`
	TxHash    common.Hash            `json:"tx_hash"`
	Block     uint64                 `json:"block"`
	LogIndex  uint                   `json:"log_index"`
	Actor     *common.Address        `json:"actor,omitempty"`
	Timestamp uint64                 `json:"timestamp,omitempty"`
	Args      map[string]interface{} `json:"args,omitempty"`
}

// AuditFilter narrows the audit log. Zero values match everything.
type AuditFilter struct {
	Event  string `form:"type"`
	Entity string `form:"entity"`
	Search string `form:"search"`
	From   uint64 `form:"from"`
	To     uint64 `form:"to"`
}
