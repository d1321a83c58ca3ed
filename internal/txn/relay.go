package txn

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/jwalitptl/ehr-chainview/internal/model"
	apperrors "github.com/jwalitptl/ehr-chainview/pkg/errors"
	"github.com/jwalitptl/ehr-chainview/pkg/logger"
	"github.com/jwalitptl/ehr-chainview/pkg/metrics"
)

// Backend is the slice of ethclient used to relay and await transactions.
type Backend interface {
	bind.DeployBackend
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	ChainID(ctx context.Context) (*big.Int, error)
}

// OutboxWriter records relayed transactions for the worker to publish.
type OutboxWriter interface {
	Create(ctx context.Context, event *model.OutboxEvent) error
}

// Prepared is the unsigned call a wallet is asked to sign.
type Prepared struct {
	To   common.Address `json:"to"`
	Data hexutil.Bytes  `json:"data"`
}

// Submission is a signed transaction plus what it must match.
type Submission struct {
	View     string
	Action   string
	Subject  string
	Prepared Prepared
	// From is the wallet the session belongs to.
	From     common.Address
	SignedTx string
}

// Control identifies the row action the in-flight guard keys on.
func (s Submission) Control() string {
	return strings.ToLower(s.View + "/" + s.Subject + "/" + s.Action)
}

type RelayerConfig struct {
	ReceiptTimeout time.Duration
}

type Relayer struct {
	backend Backend
	outbox  OutboxWriter
	cfg     RelayerConfig
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewRelayer(backend Backend, outbox OutboxWriter, cfg RelayerConfig, log *logger.Logger, m *metrics.Metrics) *Relayer {
	if cfg.ReceiptTimeout <= 0 {
		cfg.ReceiptTimeout = 2 * time.Minute
	}
	if log == nil {
		log = logger.Nop()
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &Relayer{backend: backend, outbox: outbox, cfg: cfg, logger: log, metrics: m}
}

// Decode parses and checks a signed transaction against the prepared call
// and the session wallet.
func (r *Relayer) Decode(ctx context.Context, s Submission) (*types.Transaction, error) {
	raw, err := hexutil.Decode(s.SignedTx)
	if err != nil {
		return nil, apperrors.BadRequest("signed_tx is not hex encoded", err)
	}
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return nil, apperrors.BadRequest("signed_tx is not a valid transaction", err)
	}
	if tx.To() == nil || *tx.To() != s.Prepared.To {
		return nil, apperrors.BadRequest("transaction is addressed to the wrong contract", nil)
	}
	if !bytes.Equal(tx.Data(), s.Prepared.Data) {
		return nil, apperrors.BadRequest("transaction data does not match the prepared call", nil)
	}
	chainID, err := r.backend.ChainID(ctx)
	if err != nil {
		return nil, apperrors.Unavailable(err)
	}
	from, err := types.Sender(types.LatestSignerForChainID(chainID), tx)
	if err != nil {
		return nil, apperrors.BadRequest("cannot recover transaction sender", err)
	}
	if s.From != (common.Address{}) && from != s.From {
		return nil, apperrors.Forbidden("transaction is not signed by the session wallet")
	}
	return tx, nil
}

// Submit relays a signed transaction and waits for a successful receipt.
// Once the transaction is decoded, sending and waiting are bound by the
// receipt timeout only, so a caller deadline cannot abandon a relayed
// transaction half way.
func (r *Relayer) Submit(ctx context.Context, s Submission) (*types.Receipt, error) {
	tx, err := r.Decode(ctx, s)
	if err != nil {
		return nil, err
	}
	log := r.logger.WithFields(map[string]interface{}{
		"view":    s.View,
		"action":  s.Action,
		"subject": s.Subject,
		"tx_hash": tx.Hash().Hex(),
	})

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.ReceiptTimeout)
	defer cancel()

	if err := r.backend.SendTransaction(wctx, tx); err != nil {
		log.Warn("Transaction rejected by provider", "error", err.Error())
		r.finish(wctx, s, tx, nil, txFailed, err)
		return nil, apperrors.TxFailed(err)
	}

	receipt, err := bind.WaitMined(wctx, r.backend, tx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("no receipt for %s within %s: %w", tx.Hash().Hex(), r.cfg.ReceiptTimeout, err)
			log.Warn("Transaction still pending", "timeout", r.cfg.ReceiptTimeout.String())
			r.finish(wctx, s, tx, nil, txPending, err)
			return nil, apperrors.Pending(err)
		}
		r.finish(wctx, s, tx, nil, txFailed, err)
		return nil, apperrors.TxFailed(err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		err := fmt.Errorf("transaction %s reverted in block %s", tx.Hash().Hex(), receipt.BlockNumber)
		r.finish(wctx, s, tx, receipt, txFailed, err)
		return nil, apperrors.TxFailed(err)
	}

	log.Info("Transaction confirmed", "block", receipt.BlockNumber.Uint64())
	r.finish(wctx, s, tx, receipt, txConfirmed, nil)
	return receipt, nil
}

const (
	txConfirmed = "confirmed"
	txFailed    = "failed"
	txPending   = "pending"
)

var outcomeEvents = map[string]string{
	txConfirmed: model.EventTxConfirmed,
	txFailed:    model.EventTxFailed,
	txPending:   model.EventTxPending,
}

// finish counts the outcome and records it in the outbox. Outbox failures
// are logged; the chain is the source of truth.
func (r *Relayer) finish(ctx context.Context, s Submission, tx *types.Transaction, receipt *types.Receipt, status string, txErr error) {
	r.metrics.TxSubmissions.WithLabelValues(s.Action, status).Inc()

	if r.outbox == nil {
		return
	}
	evt := model.TxEvent{
		View:    s.View,
		Action:  s.Action,
		Subject: s.Subject,
		TxHash:  tx.Hash(),
		At:      time.Now().UTC(),
	}
	if s.From != (common.Address{}) {
		from := s.From
		evt.From = &from
	}
	if receipt != nil && receipt.BlockNumber != nil {
		evt.BlockNumber = receipt.BlockNumber.Uint64()
	}
	if txErr != nil {
		evt.Error = txErr.Error()
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		r.logger.Error(err, "Failed to encode outbox payload")
		return
	}
	octx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := r.outbox.Create(octx, &model.OutboxEvent{EventType: outcomeEvents[status], Payload: payload}); err != nil {
		r.logger.Error(err, "Failed to record transaction in outbox", "tx_hash", tx.Hash().Hex())
	}
}
