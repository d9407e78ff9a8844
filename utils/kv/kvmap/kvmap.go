// Package kvmap implements an in-memory key-value bucket backed by a
// mutex-guarded Go map.
package kvmap

import (
	"context"
	"fmt"
	"sync"
)

// Bucket is an in-memory key-value bucket.
type Bucket struct {
	mu sync.RWMutex
	m  map[string][]byte
}

func NewBucket() *Bucket {
	return &Bucket{m: make(map[string][]byte)}
}

func (b *Bucket) Get(_ context.Context, k string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.m[k]
	if !ok {
		return nil, fmt.Errorf("key not found: %s", k)
	}
	return v, nil
}

func (b *Bucket) Set(_ context.Context, k string, v []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.m[k] = v
	return nil
}

func (b *Bucket) Has(_ context.Context, k string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.m[k]
	return ok, nil
}

func (b *Bucket) Delete(_ context.Context, k string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.m, k)
	return nil
}

// Keys returns the keys in this bucket. The spawned goroutine holds a
// read lock on the map until the channel drains or cancel closes, so
// writing to the bucket while iterating will deadlock.
func (b *Bucket) Keys(cancel <-chan struct{}) <-chan string {
	r := make(chan string)
	go func() {
		b.mu.RLock()
		defer b.mu.RUnlock()
		defer close(r)
		for k := range b.m {
			select {
			case <-cancel:
				return
			case r <- k:
			}
		}
	}()
	return r
}
