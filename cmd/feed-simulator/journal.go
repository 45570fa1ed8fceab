package main

import (
	"github.com/dgraph-io/badger/v4"
)

// Journal persists every ingested feature so a restarted simulator serves the
// same history it was generating before. Keys are event IDs, values the raw
// feature JSON.
type Journal struct {
	db *badger.DB
}

func OpenJournal(path string) (*Journal, error) {
	opts := badger.DefaultOptions(path)
	// Decrease logging verbosity
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &Journal{db: db}, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

func (j *Journal) Append(id string, payload []byte) error {
	return j.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(id), payload)
	})
}

func (j *Journal) ForEach(fn func(id string, payload []byte) error) error {
	return j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			k := item.Key()
			err := item.Value(func(v []byte) error {
				return fn(string(k), v)
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}
