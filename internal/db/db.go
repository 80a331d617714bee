package db

import (
	"database/sql"
	"errors"

	_ "github.com/mattn/go-sqlite3"
)

const (
	// Both pools use WAL mode so readers and the writer don't block each other,
	// enforce foreign keys and wait up to 5s for a lock.
	// The write pool additionally starts transactions with BEGIN IMMEDIATE, so
	// that a transaction that reads before it writes can't fail halfway
	// with SQLITE_BUSY.
	writeOptions = "?_foreign_keys=on&_journal_mode=wal&_busy_timeout=5000&_txlock=immediate"
	readOptions  = "?_foreign_keys=on&_journal_mode=wal&_busy_timeout=5000&_query_only=true"
)

// OpenSQLite opens a pool of SQLite connections. Different settings
// are appropriate for reading and writing, so this function needs to know
// what the sql.DB will be used for.
//
// See this comment for more information:
// https://github.com/mattn/go-sqlite3/issues/1179#issuecomment-1638083995
func OpenSQLite(dbFile string, write bool) (*sql.DB, error) {
	optsPostfix := readOptions
	if write {
		optsPostfix = writeOptions
	}

	db, err := sql.Open("sqlite3", dbFile+optsPostfix)
	if err != nil {
		return nil, err
	}

	if write {
		// A single writer serializes all write transactions, conditional
		// updates rely on this.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)

		db.SetConnMaxLifetime(0)
		db.SetConnMaxIdleTime(0)
	}

	return db, nil
}

// Pools is a pair of connection pools to the same database file.
type Pools struct {
	Read  *sql.DB
	Write *sql.DB
}

// OpenPools opens a read and a write pool for dbFile.
func OpenPools(dbFile string) (Pools, error) {
	write, err := OpenSQLite(dbFile, true)
	if err != nil {
		return Pools{}, err
	}

	read, err := OpenSQLite(dbFile, false)
	if err != nil {
		return Pools{}, errors.Join(err, write.Close())
	}

	return Pools{Read: read, Write: write}, nil
}

// Close closes both pools.
func (p Pools) Close() error {
	return errors.Join(p.Read.Close(), p.Write.Close())
}
