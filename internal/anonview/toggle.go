// Package anonview maintains the set of client addresses for which the
// anonymized display mode is active.
package anonview

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// StoreKey is the well-known Redis key holding the address list. The
// value format is the legacy one: a single space-delimited string where
// every stored address is preceded by a space.
const StoreKey = "anonymized_view_starter_ips"

// maxRetries bounds the optimistic-transaction retry loop under write
// contention.
const maxRetries = 16

// ErrContention is returned when the toggle keeps losing the optimistic
// transaction. Callers treat it as a transient failure.
var ErrContention = errors.New("anonview: too much contention on toggle store")

// Toggle flips per-address membership in the shared address list.
//
// Membership is checked by substring containment, exactly as the legacy
// implementation did: an address that is a textual substring of another
// stored address is reported active even when it was never toggled on.
// Callers relying on that quirk get the same answers; see the package
// tests. What this implementation does fix is atomicity: the
// read-modify-write runs inside a Redis optimistic transaction (WATCH),
// so concurrent toggles retry instead of silently overwriting each other.
type Toggle struct {
	client *redis.Client
	key    string
}

// New constructs a Toggle against the shared store.
func New(client *redis.Client) *Toggle {
	return &Toggle{client: client, key: StoreKey}
}

// Flip toggles membership for addr and returns the resulting state:
// true when the address is now active. Flipping twice restores the
// original state.
func (t *Toggle) Flip(ctx context.Context, addr string) (bool, error) {
	if addr == "" {
		return false, errors.New("anonview: empty address")
	}

	var active bool
	txf := func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, t.key).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}

		var next string
		if strings.Contains(cur, addr) {
			next = strings.Replace(cur, " "+addr, "", 1)
			active = false
		} else {
			next = cur + " " + addr
			active = true
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, t.key, next, 0)
			return nil
		})
		return err
	}

	for i := 0; i < maxRetries; i++ {
		err := t.client.Watch(ctx, txf, t.key)
		if err == nil {
			return active, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return false, fmt.Errorf("anonview: toggle: %w", err)
	}
	return false, ErrContention
}

// IsActive reports whether the anonymized view is active for addr.
func (t *Toggle) IsActive(ctx context.Context, addr string) (bool, error) {
	if addr == "" {
		return false, nil
	}
	cur, err := t.client.Get(ctx, t.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("anonview: read: %w", err)
	}
	return strings.Contains(cur, addr), nil
}
