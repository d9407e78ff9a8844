package diskv

import (
	"os"
	"testing"

	"github.com/ahalstead/caseng/engine/storage"
	"github.com/ahalstead/caseng/engine/storage/test"
)

func TestDiskvStorage(t *testing.T) {
	test.TestEngineStorage(t, func() storage.AllStorage { return New("teststor") })
	os.RemoveAll("teststor")
}
