package main

import (
	"fmt"

	"github.com/ahalstead/caseng/engine/storage"
	storagediskv "github.com/ahalstead/caseng/engine/storage/diskv"
	storageinmem "github.com/ahalstead/caseng/engine/storage/inmem"
	storagemysql "github.com/ahalstead/caseng/engine/storage/mysql"

	_ "github.com/go-sql-driver/mysql"
)

func parseStorage(name, dsn string) (storage.AllStorage, error) {
	switch name {
	case "inmem":
		return storageinmem.New(), nil
	case "file", "diskv":
		if dsn == "" {
			dsn = "db"
		}
		return storagediskv.New(dsn), nil
	case "mysql":
		return storagemysql.New(storagemysql.WithDSN(dsn))
	}
	return nil, fmt.Errorf("unknown storage: %s", name)
}
