package inmem

import (
	"testing"

	"github.com/ahalstead/caseng/engine/storage"
	"github.com/ahalstead/caseng/engine/storage/test"
)

func TestInmemStorage(t *testing.T) {
	test.TestEngineStorage(t, func() storage.AllStorage { return New() })
}
