// Package diskv implements an engine storage backend using the diskv key-value store.
package diskv

import (
	"path/filepath"

	storagekv "github.com/ahalstead/caseng/engine/storage/kv"
	"github.com/ahalstead/caseng/utils/kv/kvdiskv"
	"github.com/peterbourgon/diskv/v3"
)

// Diskv is a diskv-backed engine storage backend.
type Diskv struct {
	*storagekv.KV
}

func New(path string) *Diskv {
	flatTransform := func(s string) []string { return []string{} }
	newBucket := func(name string) *kvdiskv.Bucket {
		return kvdiskv.NewBucket(diskv.New(diskv.Options{
			BasePath:     filepath.Join(path, "engine", name),
			Transform:    flatTransform,
			CacheSizeMax: 1024 * 1024,
		}))
	}
	return &Diskv{KV: storagekv.New(
		newBucket("event"),
		newBucket("case"),
		newBucket("workitem"),
	)}
}
