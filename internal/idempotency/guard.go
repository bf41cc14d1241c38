package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

var (
	// ErrInProgress means an earlier request with the same key has not finished.
	ErrInProgress = errors.New("a request with this idempotency key is still in progress")
	// ErrKeyReused means the key was first used with a different request body.
	ErrKeyReused = errors.New("idempotency key was used with a different request")
)

// Keeper is implemented by Store and MemoryStore.
type Keeper interface {
	CreateIfNotExists(ctx context.Context, key, fingerprint string) (bool, error)
	Get(ctx context.Context, key string) (*IdempotencyRecord, error)
	Reopen(ctx context.Context, key string) error
	MarkDone(ctx context.Context, key string, resp Response) error
	MarkFailed(ctx context.Context, key, note string) error
}

// Scope namespaces a client key by operation and caller, so two callers
// (or two endpoints) never share an entry.
func Scope(operation, actorID, key string) string {
	return operation + "#" + actorID + "#" + key
}

// Fingerprint hashes a request body.
func Fingerprint(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// Do runs fn at most once per key. A retry of a completed request gets the
// stored response back with replayed set. A failed request may be retried.
// When fn fails the record is marked FAILED and fn's error is returned.
func Do(ctx context.Context, k Keeper, key, fingerprint string, fn func() (Response, error)) (resp Response, replayed bool, err error) {
	created, err := k.CreateIfNotExists(ctx, key, fingerprint)
	if err != nil {
		return Response{}, false, err
	}
	if !created {
		rec, err := k.Get(ctx, key)
		if err != nil {
			return Response{}, false, err
		}
		if rec == nil {
			// expired between the put and the read
			return Response{}, false, ErrInProgress
		}
		if rec.Fingerprint != fingerprint {
			return Response{}, false, ErrKeyReused
		}
		switch rec.Status {
		case StatusDone:
			return Response{Status: rec.ResponseStatus, Body: rec.ResponseBody, OrderID: rec.OrderID}, true, nil
		case StatusFailed:
			if err := k.Reopen(ctx, key); err != nil {
				if errors.Is(err, ErrConditionFailed) {
					return Response{}, false, ErrInProgress
				}
				return Response{}, false, err
			}
		default:
			return Response{}, false, ErrInProgress
		}
	}

	resp, err = fn()
	if err != nil {
		if merr := k.MarkFailed(ctx, key, err.Error()); merr != nil {
			return Response{}, false, fmt.Errorf("%w (mark failed: %v)", err, merr)
		}
		return Response{}, false, err
	}
	if err := k.MarkDone(ctx, key, resp); err != nil {
		return resp, false, fmt.Errorf("mark done: %w", err)
	}
	return resp, false, nil
}
