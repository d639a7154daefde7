package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strconv"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/kb-harvester/internal/model"
)

const (
	recordPrefix = "rec:"
	cursorPrefix = "cur:"
)

// BadgerStore keeps records as JSON values in an embedded badger database.
// Ordering and filtering happen in process, so it suits knowledge bases that
// fit comfortably in memory.
type BadgerStore struct {
	db *badger.DB
}

type badgerLogger struct{ s *zap.SugaredLogger }

func (l badgerLogger) Errorf(f string, a ...any)   { l.s.Errorf(f, a...) }
func (l badgerLogger) Warningf(f string, a ...any) { l.s.Warnf(f, a...) }
func (l badgerLogger) Infof(f string, a ...any)    { l.s.Debugf(f, a...) }
func (l badgerLogger) Debugf(f string, a ...any)   { l.s.Debugf(f, a...) }

// NewBadger opens (creating if needed) a badger directory at dir. An empty dir
// opens an in-memory database.
func NewBadger(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "badger: create %s", dir)
	}
	opts.Logger = badgerLogger{s: zap.S().With("component", "badger")}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, eris.Wrap(err, "badger: open")
	}
	return &BadgerStore{db: db}, nil
}

func recordKey(id string) []byte { return []byte(recordPrefix + id) }

func (s *BadgerStore) Migrate(context.Context) error { return nil }

func (s *BadgerStore) Close() error {
	return eris.Wrap(s.db.Close(), "badger: close")
}

func readRecord(txn *badger.Txn, id string) (*model.Record, error) {
	item, err := txn.Get(recordKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var rec model.Record
	if err := item.Value(func(v []byte) error { return json.Unmarshal(v, &rec) }); err != nil {
		return nil, eris.Wrapf(err, "decode %s", id)
	}
	return &rec, nil
}

func writeRecord(txn *badger.Txn, rec *model.Record) error {
	v, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrapf(err, "encode %s", rec.ID)
	}
	return txn.Set(recordKey(rec.ID), v)
}

func exists(txn *badger.Txn, id string) (bool, error) {
	_, err := txn.Get(recordKey(id))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return false, nil
	default:
		return false, err
	}
}

func (s *BadgerStore) all() ([]model.Record, error) {
	var out []model.Record
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: true, PrefetchSize: 100, Prefix: []byte(recordPrefix)})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var rec model.Record
			if err := it.Item().Value(func(v []byte) error { return json.Unmarshal(v, &rec) }); err != nil {
				return eris.Wrapf(err, "decode %s", it.Item().Key())
			}
			out = append(out, rec)
		}
		return nil
	})
	return out, eris.Wrap(err, "badger: scan records")
}

func (s *BadgerStore) ListRecords(_ context.Context, opts ListOpts) ([]model.Record, error) {
	if _, err := orderBy(opts.Sort); err != nil {
		return nil, err
	}
	recs, err := s.all()
	if err != nil {
		return nil, err
	}
	_ = sortRecords(recs, opts.Sort)
	return pageOf(recs, opts), nil
}

func (s *BadgerStore) FilterRecords(_ context.Context, field, value string, limit int) ([]model.Record, error) {
	if err := checkField(field); err != nil {
		return nil, err
	}
	recs, err := s.all()
	if err != nil {
		return nil, err
	}
	_ = sortRecords(recs, SortCreated)
	return matching(recs, field, value, limit), nil
}

func (s *BadgerStore) GetRecord(_ context.Context, id string) (*model.Record, error) {
	var rec *model.Record
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		rec, err = readRecord(txn, id)
		return err
	})
	if err != nil {
		return nil, eris.Wrapf(err, "badger: get record %s", id)
	}
	return rec, nil
}

func (s *BadgerStore) CreateRecord(_ context.Context, rec *model.Record) error {
	prepareCreate(rec)
	err := s.db.Update(func(txn *badger.Txn) error {
		dup, err := exists(txn, rec.ID)
		if err != nil {
			return err
		}
		if dup {
			return eris.Errorf("record %s already exists", rec.ID)
		}
		return writeRecord(txn, rec)
	})
	return eris.Wrapf(err, "badger: insert record %s", rec.Domain)
}

func (s *BadgerStore) UpdateRecord(_ context.Context, rec *model.Record) error {
	touchUpdate(rec)
	err := s.db.Update(func(txn *badger.Txn) error {
		ok, err := exists(txn, rec.ID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotFound
		}
		return writeRecord(txn, rec)
	})
	return eris.Wrapf(err, "badger: update record %s", rec.ID)
}

func (s *BadgerStore) DeleteRecord(ctx context.Context, id string) error {
	n, err := s.DeleteRecords(ctx, []string{id})
	if err != nil {
		return err
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "badger: delete record %s", id)
	}
	return nil
}

// CopyRecords writes recs in one transaction; a duplicate id aborts all of it.
func (s *BadgerStore) CopyRecords(_ context.Context, recs []model.Record) (int64, error) {
	err := s.db.Update(func(txn *badger.Txn) error {
		for i := range recs {
			prepareCreate(&recs[i])
			dup, err := exists(txn, recs[i].ID)
			if err != nil {
				return err
			}
			if dup {
				return eris.Errorf("record %s already exists", recs[i].ID)
			}
			if err := writeRecord(txn, &recs[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, eris.Wrap(err, "badger: copy records")
	}
	return int64(len(recs)), nil
}

func (s *BadgerStore) DeleteRecords(_ context.Context, ids []string) (int64, error) {
	var n int64
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, id := range ids {
			ok, err := exists(txn, id)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			if err := txn.Delete(recordKey(id)); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, eris.Wrap(err, "badger: delete records")
	}
	return n, nil
}

func (s *BadgerStore) LoadCursor(_ context.Context, name string) (int, error) {
	pos := 0
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(cursorPrefix + name))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			pos, err = strconv.Atoi(string(v))
			return err
		})
	})
	return pos, eris.Wrapf(err, "badger: load cursor %s", name)
}

func (s *BadgerStore) SaveCursor(_ context.Context, name string, position int) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(cursorPrefix+name), []byte(strconv.Itoa(position)))
	})
	return eris.Wrapf(err, "badger: save cursor %s", name)
}
