// Package history keeps the meetings each browser has joined.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dkeye/meet/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/buntdb"
)

const keyPrefix = "visit:"

// Store persists visits in buntdb. Record is asynchronous so the orchestrator
// loop never waits on storage.
type Store struct {
	db    *buntdb.DB
	ttl   time.Duration
	queue chan domain.Visit
	seq   atomic.Uint64
}

func Open(path string, ttl time.Duration, queue int) (*Store, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open history db %q: %w", path, err)
	}
	if queue <= 0 {
		queue = 128
	}
	return &Store{db: db, ttl: ttl, queue: make(chan domain.Visit, queue)}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Record queues v for writing. When the queue is full the visit is dropped.
func (s *Store) Record(v domain.Visit) {
	select {
	case s.queue <- v:
	default:
		log.Warn().Str("module", "history").Str("room", string(v.MeetingCode)).Msg("history queue full, visit dropped")
	}
}

// Run writes queued visits until ctx is cancelled, then drains what is left.
func (s *Store) Run(ctx context.Context) {
	for {
		select {
		case v := <-s.queue:
			s.write(v)
		case <-ctx.Done():
			for {
				select {
				case v := <-s.queue:
					s.write(v)
				default:
					return
				}
			}
		}
	}
}

func (s *Store) write(v domain.Visit) {
	if err := s.Put(v); err != nil {
		log.Error().Err(err).Str("module", "history").Str("room", string(v.MeetingCode)).Msg("store visit")
	}
}

func visitKey(token string, at time.Time, seq uint64) string {
	return fmt.Sprintf("%s%s:%020d:%08d", keyPrefix, token, at.UnixNano(), seq)
}

// Put writes v synchronously.
func (s *Store) Put(v domain.Visit) error {
	if v.ClientToken == "" {
		return fmt.Errorf("visit without client token")
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	key := visitKey(v.ClientToken, v.JoinedAt, s.seq.Add(1))
	var opts *buntdb.SetOptions
	if s.ttl > 0 {
		opts = &buntdb.SetOptions{Expires: true, TTL: s.ttl}
	}
	return s.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(key, string(data), opts)
		return err
	})
}

// ListByClient returns the client's visits, newest first. limit <= 0 means all.
func (s *Store) ListByClient(token string, limit int) ([]domain.Visit, error) {
	if token == "" {
		return nil, nil
	}
	var out []domain.Visit
	err := s.db.View(func(tx *buntdb.Tx) error {
		var decodeErr error
		err := tx.DescendKeys(keyPrefix+token+":*", func(_, value string) bool {
			var v domain.Visit
			if decodeErr = json.Unmarshal([]byte(value), &v); decodeErr != nil {
				return false
			}
			v.ClientToken = token
			out = append(out, v)
			return limit <= 0 || len(out) < limit
		})
		if err != nil {
			return err
		}
		return decodeErr
	})
	if err != nil {
		return nil, fmt.Errorf("list visits: %w", err)
	}
	return out, nil
}
