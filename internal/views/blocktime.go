package views

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/patrickmn/go-cache"
)

// blockTimes memoizes block timestamps. A mined header never changes.
type blockTimes struct {
	chain   ChainReader
	headers *cache.Cache
}

func newBlockTimes(chain ChainReader) *blockTimes {
	return &blockTimes{chain: chain, headers: cache.New(time.Hour, 10*time.Minute)}
}

// At returns the unix time of block.
func (b *blockTimes) At(ctx context.Context, block uint64) (uint64, error) {
	key := fmt.Sprint(block)
	if v, ok := b.headers.Get(key); ok {
		return v.(uint64), nil
	}
	h, err := b.chain.HeaderByNumber(ctx, new(big.Int).SetUint64(block))
	if err != nil {
		return 0, err
	}
	b.headers.SetDefault(key, h.Time)
	return h.Time, nil
}
