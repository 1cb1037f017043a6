package orchestrator

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/ioustamora/datamesh/internal/crypto"
	"github.com/ioustamora/datamesh/internal/erasure"
)

// fetchState is the shared, mutex-protected bookkeeping every shard-fetch
// goroutine reads and updates: which shards have landed, how many fetches
// have succeeded, and which index to claim next. It generalizes the
// teacher's downloadShards/downloadShard/maybeStartNext trio (temp-file
// paths indexed by shard, "successfulShards", "nextShardIndex") from a
// fixed dataShards target to the erasure layer's k-of-N threshold.
type fetchState struct {
	mu         sync.Mutex
	results    map[int][]byte
	successful int
	nextIndex  int
}

// fetchShards retrieves shards for fk until layout.DataShards distinct
// shards are in hand, then cancels every outstanding GetRecord — spec.md
// §4.5's early-termination invariant, bounding tail latency at the k-th
// percentile of shard fetch latency instead of the N-th.
func (o *Orchestrator) fetchShards(ctx context.Context, fk crypto.FileKey, layout erasure.Layout) ([]erasure.Shard, int, error) {
	total := layout.TotalShards()
	concurrency := layout.DataShards
	if concurrency > total {
		concurrency = total
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	st := &fetchState{results: make(map[int][]byte), nextIndex: concurrency}

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go o.fetchShard(ctx, &wg, st, fk, layout, i, cancel)
	}
	wg.Wait()

	st.mu.Lock()
	defer st.mu.Unlock()
	shards := make([]erasure.Shard, 0, len(st.results))
	for idx, data := range st.results {
		shards = append(shards, erasure.Shard{Index: idx, Data: data})
	}
	return shards, len(st.results), nil
}

func (o *Orchestrator) fetchShard(ctx context.Context, wg *sync.WaitGroup, st *fetchState, fk crypto.FileKey, layout erasure.Layout, index int, cancel context.CancelFunc) {
	defer wg.Done()

	select {
	case <-ctx.Done():
		return
	default:
	}

	key := crypto.ShardKey(fk, index)
	data, err := o.actor.GetRecord(ctx, key[:], 1)

	st.mu.Lock()
	if err != nil {
		log.Debugf("shard %d fetch failed: %v", index, err)
	} else {
		st.results[index] = data
		st.successful++
		if st.successful >= layout.DataShards {
			st.mu.Unlock()
			cancel()
			return
		}
	}

	startNext := st.successful < layout.DataShards && st.nextIndex < layout.TotalShards()
	var nextIdx int
	if startNext {
		nextIdx = st.nextIndex
		st.nextIndex++
	}
	st.mu.Unlock()

	if startNext {
		wg.Add(1)
		go o.fetchShard(ctx, wg, st, fk, layout, nextIdx, cancel)
	}
}
