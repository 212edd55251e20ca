package poll

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Gather fans probe out across all targets concurrently and collects the
// successful results keyed by target key. A failing target is logged and
// skipped; it never aborts or delays the others.
func Gather[K comparable, T, R any](ctx context.Context, logger zerolog.Logger, targets map[K]T, probe func(context.Context, K, T) (R, error)) map[K]R {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = make(map[K]R, len(targets))
	)

	for key, target := range targets {
		wg.Add(1)
		go func(key K, target T) {
			defer wg.Done()

			result, err := probe(ctx, key, target)
			if err != nil {
				logger.Warn().Err(err).Str("target", fmt.Sprint(key)).Msg("probe failed")
				return
			}

			mu.Lock()
			results[key] = result
			mu.Unlock()
		}(key, target)
	}

	wg.Wait()
	return results
}
