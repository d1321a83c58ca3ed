package model

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// TransitionKind is the direction of a membership change.
type TransitionKind int

const (
	TransitionAdd TransitionKind = iota + 1
	TransitionRemove
)

func (k TransitionKind) String() string {
	switch k {
	case TransitionAdd:
		return "add"
	case TransitionRemove:
		return "remove"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Key identifies one membership: the subject address plus an optional
// subkey (a role id, an admin category or a counterpart address).
type Key struct {
	Subject common.Address
	Sub     string
}

func NewKey(subject common.Address, sub string) Key {
	return Key{Subject: subject, Sub: strings.ToLower(sub)}
}

func (k Key) String() string {
	if k.Sub == "" {
		return strings.ToLower(k.Subject.Hex())
	}
	return strings.ToLower(k.Subject.Hex()) + ":" + k.Sub
}

// Transition is a single add or remove observed in the event log.
type Transition struct {
	Key      Key
	Kind     TransitionKind
	Block    uint64
	LogIndex uint
	TxHash   common.Hash
}

// MembershipRecord is the reduced state of one key.
type MembershipRecord struct {
	Key            common.Address `json:"key"`
	Role           string         `json:"role,omitempty"`
	Active         bool           `json:"active"`
	FirstSeenBlock uint64         `json:"first_seen_block"`
	LastSeenBlock  uint64         `json:"last_seen_block"`
	LastTxHash     common.Hash    `json:"last_tx_hash"`
}

func (r MembershipRecord) MapKey() Key {
	return Key{Subject: r.Key, Sub: r.Role}
}
