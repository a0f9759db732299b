package lockstep

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestRotateConcurrencySingleWinner(t *testing.T) {
	engine := newEngineForTest(t, engineTestConfig())
	ctx := context.Background()

	pair, err := engine.IssuePair(ctx, "u1")
	if err != nil {
		t.Fatalf("IssuePair failed: %v", err)
	}

	const n = 16
	var wg sync.WaitGroup
	wg.Add(n)

	results := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := engine.Rotate(ctx, pair.RefreshToken)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	success := 0
	fail := 0
	for err := range results {
		if err == nil {
			success++
			continue
		}
		// Losers see reuse, or unauthorized when another loser already
		// revoked the family before their lookup.
		if errors.Is(err, ErrTokenReuse) || errors.Is(err, ErrUnauthorized) {
			fail++
			continue
		}
		t.Fatalf("unexpected rotate error: %v", err)
	}

	if success != 1 {
		t.Fatalf("expected exactly one rotate success, got %d", success)
	}
	if fail != n-1 {
		t.Fatalf("expected %d rotate failures, got %d", n-1, fail)
	}
}
