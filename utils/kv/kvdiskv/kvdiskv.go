// Package kvdiskv adapts diskv to the kv bucket interface.
package kvdiskv

import (
	"context"

	"github.com/peterbourgon/diskv/v3"
)

// Bucket is an on-disk key-value bucket backed by diskv.
type Bucket struct {
	dv *diskv.Diskv
}

func NewBucket(dv *diskv.Diskv) *Bucket {
	return &Bucket{dv: dv}
}

func (b *Bucket) Get(_ context.Context, k string) ([]byte, error) {
	return b.dv.Read(k)
}

func (b *Bucket) Set(_ context.Context, k string, v []byte) error {
	return b.dv.Write(k, v)
}

func (b *Bucket) Has(_ context.Context, k string) (bool, error) {
	return b.dv.Has(k), nil
}

func (b *Bucket) Delete(_ context.Context, k string) error {
	return b.dv.Erase(k)
}

func (b *Bucket) Keys(cancel <-chan struct{}) <-chan string {
	return b.dv.Keys(cancel)
}
