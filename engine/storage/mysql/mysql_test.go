package mysql

import (
	"os"
	"testing"

	"github.com/ahalstead/caseng/engine/storage"
	"github.com/ahalstead/caseng/engine/storage/test"

	_ "github.com/go-sql-driver/mysql"
)

func TestMySQLStorage(t *testing.T) {
	testDSN := os.Getenv("CASENG_MYSQL_STORAGE_TEST_DSN")
	if testDSN == "" {
		t.Skip("CASENG_MYSQL_STORAGE_TEST_DSN not set")
	}

	s, err := New(WithDSN(testDSN))
	if err != nil {
		t.Fatal(err)
	}

	// to test against an existing DB/DSN first clear out:
	//
	// DELETE FROM lifecycle_events;
	// DELETE FROM work_items;
	// DELETE FROM cases;

	test.TestEngineStorage(t, func() storage.AllStorage { return s })
}
