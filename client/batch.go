package client

import (
	"fmt"
	"sync"

	"github.com/emirpasic/gods/sets/hashset"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
	"golang.org/x/exp/maps"

	"github.com/nStangl/minivault-go/util"
)

// The batch helpers fan independent calls out over the façade's Get
// and Set only, so they work identically on both transports. They
// promise that every key is attempted, nothing about completion order.

type (
	// BatchOption tunes one batch call.
	BatchOption func(*batchConfig)

	batchConfig struct {
		workers int
		logger  logrus.FieldLogger
	}
)

// DefaultBatchWorkers caps how many operations a batch keeps in
// flight.
const DefaultBatchWorkers = 10

// WithWorkers overrides DefaultBatchWorkers.
func WithWorkers(n int) BatchOption {
	return func(c *batchConfig) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithBatchLogger redirects the batch's diagnostic side channel.
func WithBatchLogger(l logrus.FieldLogger) BatchOption {
	return func(c *batchConfig) { c.logger = l }
}

func newBatchConfig(opts ...BatchOption) batchConfig {
	c := batchConfig{workers: DefaultBatchWorkers, logger: logrus.StandardLogger()}

	for _, o := range opts {
		o(&c)
	}

	return c
}

// MGet fetches keys in parallel. Duplicate keys are fetched once;
// absent keys and failed fetches are left out of the result, and a
// per-key failure never aborts the rest of the batch.
func MGet(c Client, keys []string, opts ...BatchOption) map[string][]byte {
	cfg := newBatchConfig(opts...)

	uniq := hashset.New()
	for _, k := range keys {
		uniq.Add(k)
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, util.Max(1, util.Min(uniq.Size(), cfg.workers)))
		out = make(map[string][]byte, uniq.Size())
	)

	for _, k := range uniq.Values() {
		key := k.(string)

		wg.Add(1)
		sem <- struct{}{}

		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			if data := c.Get(key); data != nil {
				mu.Lock()
				out[key] = data
				mu.Unlock()
			}
		}()
	}

	wg.Wait()

	return out
}

// MSet stores entries in parallel and reports whether every key was
// stored. Individual failures are aggregated and logged, never fatal
// to the rest of the batch.
func MSet(c Client, entries map[string][]byte, opts ...BatchOption) bool {
	cfg := newBatchConfig(opts...)

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		sem    = make(chan struct{}, util.Max(1, util.Min(len(entries), cfg.workers)))
		result error
	)

	for _, key := range maps.Keys(entries) {
		key := key
		value := entries[key]

		wg.Add(1)
		sem <- struct{}{}

		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			if !c.Set(key, value) {
				mu.Lock()
				result = multierr.Append(result, fmt.Errorf("set %q failed", key))
				mu.Unlock()
			}
		}()
	}

	wg.Wait()

	if result != nil {
		cfg.logger.WithError(result).Warn("mset partially failed")
		return false
	}

	return true
}
