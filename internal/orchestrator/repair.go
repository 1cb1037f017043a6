package orchestrator

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/ioustamora/datamesh/internal/crypto"
	"github.com/ioustamora/datamesh/internal/erasure"
	"github.com/ioustamora/datamesh/internal/errors"
)

// Repair probes every shard of name, and if any are missing but at least k
// are reachable, reconstructs the ciphertext, re-encodes it, and
// republishes only the missing shard keys. This is spec.md §4.5's health
// computation made actionable: a maintenance sweep calls Repair on any file
// whose health has fallen below the configured RepairThreshold. Grounded on
// the teacher's placement-driven re-upload path (FileService.uploadShards),
// reused here for a partial shard set instead of all N.
func (o *Orchestrator) Repair(ctx context.Context, name string) error {
	rec, err := o.cat.LookupByName(name)
	if err != nil {
		return err
	}
	fk, err := parseFileKey(rec.FK)
	if err != nil {
		return err
	}
	layout := erasure.Layout{
		DataShards:   rec.DataShards,
		ParityShards: rec.ParityShards,
		ShardSize:    int(rec.ShardSize),
		OriginalSize: rec.CipherSize,
	}
	total := layout.TotalShards()

	present := make(map[int][]byte)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < total; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := crypto.ShardKey(fk, i)
			data, err := o.actor.GetRecord(ctx, key[:], 1)
			if err != nil {
				return
			}
			mu.Lock()
			present[i] = data
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	health := 100 * len(present) / total
	if len(present) == total {
		return o.cat.UpdateHealth(rec.Name, health)
	}
	if len(present) < layout.DataShards {
		return errors.New(errors.KindUnrecoverable, "fewer than k shards reachable; cannot regenerate missing shards")
	}

	shards := make([]erasure.Shard, 0, len(present))
	for idx, data := range present {
		shards = append(shards, erasure.Shard{Index: idx, Data: data})
	}
	ciphertext, err := erasure.Decode(shards, layout)
	if err != nil {
		return err
	}
	regenerated, _, err := erasure.Encode(ciphertext, layout.DataShards, layout.ParityShards)
	if err != nil {
		return err
	}

	connected, err := o.actor.ConnectedPeers(ctx)
	if err != nil {
		return err
	}
	quorum := adaptiveQuorum(o.cfg.Quorum, len(connected))

	var repairWg sync.WaitGroup
	for _, sh := range regenerated {
		if _, ok := present[sh.Index]; ok {
			continue
		}
		repairWg.Add(1)
		go func(sh erasure.Shard) {
			defer repairWg.Done()
			key := crypto.ShardKey(fk, sh.Index)
			if err := retryBackoff(ctx, o.cfg.Retry, func() error {
				_, err := o.actor.PutRecord(ctx, key[:], sh.Data, quorum)
				return err
			}); err != nil {
				log.Warnf("repair %s: shard %d still unreachable: %v", name, sh.Index, err)
			}
		}(sh)
	}
	repairWg.Wait()

	if o.metrics != nil {
		o.metrics.RepairsTotal.Inc()
	}
	return o.cat.UpdateHealth(rec.Name, 100)
}

// MaintenanceSweep repairs every catalog entry whose health has fallen
// below cfg.RepairThreshold.
func (o *Orchestrator) MaintenanceSweep(ctx context.Context) error {
	recs, err := o.cat.List("")
	if err != nil {
		return err
	}
	for _, rec := range recs {
		if rec.Health >= o.cfg.RepairThreshold {
			continue
		}
		log.Infof("maintenance sweep: repairing %s (health %d)", rec.Name, rec.Health)
		if err := o.Repair(ctx, rec.Name); err != nil {
			log.Warnf("maintenance sweep: repairing %s failed: %v", rec.Name, err)
		}
	}
	return nil
}
