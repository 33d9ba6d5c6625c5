// Package store persists comments per video in a Pebble key-value store.
//
// Keys are the video ID, a zero byte, and an 8-byte big-endian sequence
// number, so one prefix scan returns a video's comments in arrival order.
package store

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/pebble/v2"
	"github.com/cockroachdb/pebble/v2/vfs"

	"danmakuflow/internal/comment"
)

var ErrBadVideo = errors.New("invalid video id")

type Store struct {
	db   *pebble.DB
	mu   sync.Mutex
	next uint64
}

// Open opens or creates the store at dir. An empty dir keeps everything in
// memory.
func Open(dir string) (*Store, error) {
	opts := &pebble.Options{}
	path := filepath.Clean(dir)
	if dir == "" {
		opts.FS = vfs.NewMem()
		path = "comments"
	} else if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("open pebble db: %w", err)
	}
	s := &Store{db: db}
	if err := s.recoverSeq(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// recoverSeq finds the highest sequence number in use.
func (s *Store) recoverSeq() error {
	it, err := s.db.NewIter(nil)
	if err != nil {
		return err
	}
	defer func() { _ = it.Close() }()
	for it.First(); it.Valid(); it.Next() {
		k := it.Key()
		if len(k) < 9 {
			continue
		}
		if seq := binary.BigEndian.Uint64(k[len(k)-8:]); seq >= s.next {
			s.next = seq + 1
		}
	}
	return nil
}

func prefix(video string) ([]byte, error) {
	if video == "" || bytes.IndexByte([]byte(video), 0) >= 0 {
		return nil, fmt.Errorf("%w: %q", ErrBadVideo, video)
	}
	return append([]byte(video), 0), nil
}

// Append stores c under video.
func (s *Store) Append(video string, c comment.Comment) error {
	p, err := prefix(video)
	if err != nil {
		return err
	}
	val, err := json.Marshal(c)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := binary.BigEndian.AppendUint64(p, s.next)
	if err := s.db.Set(key, val, pebble.Sync); err != nil {
		return fmt.Errorf("store comment: %w", err)
	}
	s.next++
	return nil
}

// Load returns video's comments in the order they were appended. Entries
// that fail to decode are skipped.
func (s *Store) Load(video string) ([]comment.Comment, error) {
	p, err := prefix(video)
	if err != nil {
		return nil, err
	}
	it, err := s.db.NewIter(&pebble.IterOptions{LowerBound: p, UpperBound: upper(p)})
	if err != nil {
		return nil, err
	}
	defer func() { _ = it.Close() }()
	out := make([]comment.Comment, 0, 64)
	for it.First(); it.Valid(); it.Next() {
		var c comment.Comment
		if err := json.Unmarshal(it.Value(), &c); err == nil {
			out = append(out, c)
		}
	}
	return out, it.Error()
}

// Delete drops every comment stored for video.
func (s *Store) Delete(video string) error {
	p, err := prefix(video)
	if err != nil {
		return err
	}
	return s.db.DeleteRange(p, upper(p), pebble.Sync)
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// upper is the exclusive end of the key range starting with p. p always ends
// in a zero byte, so bumping it to one covers exactly that prefix.
func upper(p []byte) []byte {
	u := append([]byte(nil), p...)
	u[len(u)-1] = 1
	return u
}
