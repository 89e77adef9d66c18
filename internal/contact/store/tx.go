package store

import (
	"context"
	"sort"
	"sync"
	"time"

	pkgerrors "identity-link/pkg/domain-errors"
)

// ShardedTx serializes resolution passes over an in-memory store with sharded
// mutexes. Shards are selected by hashing the request's identifier keys, so
// requests touching disjoint identifiers proceed in parallel while requests
// sharing an email or phone value contend on the same shard.
//
// A request may carry two identifiers that hash to different shards; both are
// locked in ascending shard order so overlapping requests cannot deadlock.
const numShards = 128

// defaultTxTimeout is the maximum duration for a resolution transaction.
const defaultTxTimeout = 5 * time.Second

type ShardedTx struct {
	shards  [numShards]sync.Mutex
	store   Store
	timeout time.Duration
}

func NewShardedTx(store Store) *ShardedTx {
	return &ShardedTx{store: store}
}

func (t *ShardedTx) RunInTx(ctx context.Context, fn func(store Store) error) error {
	if err := ctx.Err(); err != nil {
		return pkgerrors.Wrap(err, pkgerrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	shards := t.selectShards(ctx)
	for _, shard := range shards {
		t.shards[shard].Lock()
	}
	defer func() {
		for i := len(shards) - 1; i >= 0; i-- {
			t.shards[shards[i]].Unlock()
		}
	}()

	// Check again after acquiring locks.
	if err := ctx.Err(); err != nil {
		return pkgerrors.Wrap(err, pkgerrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	return fn(t.store)
}

// selectShards maps the request's identifier keys to a sorted, deduplicated
// shard list. Requests without keys in context fall back to shard 0.
func (t *ShardedTx) selectShards(ctx context.Context) []int {
	keys := LockKeysFrom(ctx)
	if len(keys) == 0 {
		return []int{0}
	}
	seen := make(map[int]struct{}, len(keys))
	shards := make([]int, 0, len(keys))
	for _, key := range keys {
		shard := int(hashKey(key) % numShards)
		if _, ok := seen[shard]; !ok {
			seen[shard] = struct{}{}
			shards = append(shards, shard)
		}
	}
	sort.Ints(shards)
	return shards
}

// hashKey uses FNV-1a for cheap, well-distributed shard selection.
func hashKey(s string) uint32 {
	const (
		fnvOffset = 2166136261
		fnvPrime  = 16777619
	)
	h := uint32(fnvOffset)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= fnvPrime
	}
	return h
}
