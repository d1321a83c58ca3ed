package viewstest

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/ehr-chainview/internal/txn"
	"github.com/jwalitptl/ehr-chainview/internal/views"
)

var ChainID = big.NewInt(1337)

// Backend mines every sent transaction at once. OnSend runs before the
// receipt is available, so it can emit the events the call would.
type Backend struct {
	mu     sync.Mutex
	chain  *Chain
	sent   []*types.Transaction
	Status uint64
	// Gate, when set, blocks SendTransaction until it is closed.
	Gate   chan struct{}
	OnSend func(tx *types.Transaction)
}

func NewBackend(c *Chain) *Backend {
	return &Backend{chain: c, Status: types.ReceiptStatusSuccessful}
}

func (b *Backend) ChainID(ctx context.Context) (*big.Int, error) {
	return ChainID, nil
}

func (b *Backend) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	return []byte{1}, nil
}

func (b *Backend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if b.Gate != nil {
		<-b.Gate
	}
	b.mu.Lock()
	b.sent = append(b.sent, tx)
	hook := b.OnSend
	b.mu.Unlock()
	if hook != nil {
		hook(tx)
	}
	return nil
}

func (b *Backend) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	head, _ := b.chain.BlockNumber(ctx)
	b.mu.Lock()
	defer b.mu.Unlock()
	return &types.Receipt{Status: b.Status, TxHash: hash, BlockNumber: new(big.Int).SetUint64(head)}, nil
}

func (b *Backend) Sent() []*types.Transaction {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*types.Transaction(nil), b.sent...)
}

// WithRelay attaches a relayer over b to rt.
func WithRelay(rt *views.Runtime, b *Backend) *views.Runtime {
	relayer := txn.NewRelayer(b, nil, txn.RelayerConfig{ReceiptTimeout: 5 * time.Second}, nil, nil)
	rt.Executor = txn.NewExecutor(txn.NewGuard(), relayer)
	return rt
}

// Wallet signs prepared calls the way a browser wallet would.
type Wallet struct {
	Key     *ecdsa.PrivateKey
	Address common.Address
	nonce   uint64
}

func NewWallet(t *testing.T) *Wallet {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return &Wallet{Key: key, Address: crypto.PubkeyToAddress(key.PublicKey)}
}

// Sign returns the hex encoded signed transaction for p.
func (w *Wallet) Sign(t *testing.T, p txn.Prepared) string {
	t.Helper()
	w.nonce++
	to := p.To
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   ChainID,
		Nonce:     w.nonce,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(10),
		Gas:       200000,
		To:        &to,
		Data:      p.Data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(ChainID), w.Key)
	require.NoError(t, err)
	raw, err := signed.MarshalBinary()
	require.NoError(t, err)
	return hexutil.Encode(raw)
}
