package queue

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/cuemby/dispatchd/pkg/log"
	"github.com/cuemby/dispatchd/pkg/types"
	bolt "go.etcd.io/bbolt"
)

// segmentFilePrefix names segment files "segment-<seq>.log" inside a
// queue's directory, sorted by sequence number for recovery order.
const segmentFilePrefix = "segment-"
const segmentFileSuffix = ".log"

var commitBucket = []byte("commit")

// recoveredEntry is one record recovered from disk, tagged with its
// location so a disposed/committed entry can be pruned later.
type recoveredEntry struct {
	segmentSeq int
	offset     int64
	item       types.DispatchItem
}

// segmentStore manages the directory of segment files for one durable
// queue plus its bbolt-backed commit index (spec §4.7's "side index").
type segmentStore struct {
	mu  sync.Mutex
	dir string
	db  *bolt.DB

	activeFile *os.File
	activeSeq  int
	maxBytes   int64

	pending []recoveredEntry
}

func openSegmentStore(dir string, maxBytes int64) (*segmentStore, error) {
	if maxBytes <= 0 {
		maxBytes = types.DefaultSegmentMaxBytes
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(filepath.Join(dir, "commit.db"), 0o644, nil)
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(commitBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}

	s := &segmentStore{dir: dir, db: db, maxBytes: maxBytes}
	if err := s.recover(); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.openActiveForAppend(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func segmentPath(dir string, seq int) string {
	return filepath.Join(dir, fmt.Sprintf("%s%06d%s", segmentFilePrefix, seq, segmentFileSuffix))
}

func (s *segmentStore) listSegmentSeqs() ([]int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var seqs []int
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, segmentFilePrefix) || !strings.HasSuffix(name, segmentFileSuffix) {
			continue
		}
		numPart := strings.TrimSuffix(strings.TrimPrefix(name, segmentFilePrefix), segmentFileSuffix)
		n, err := strconv.Atoi(numPart)
		if err != nil {
			continue
		}
		seqs = append(seqs, n)
	}
	sort.Ints(seqs)
	return seqs, nil
}

// recover replays every segment in order, discarding records already
// marked committed in the side index and truncated/corrupt tail records,
// per spec §4.7.
func (s *segmentStore) recover() error {
	seqs, err := s.listSegmentSeqs()
	if err != nil {
		return err
	}
	for _, seq := range seqs {
		if err := s.recoverSegment(seq); err != nil {
			return err
		}
		s.activeSeq = seq
	}
	return nil
}

func (s *segmentStore) recoverSegment(seq int) error {
	f, err := os.Open(segmentPath(s.dir, seq))
	if err != nil {
		return err
	}
	defer f.Close()

	var offset int64
	for {
		start := offset
		item, err := decodeRecord(f)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			log.Logger.Warn().Err(err).Str("dir", s.dir).Int("segment", seq).
				Msg("discarding truncated or corrupt tail record")
			return nil
		}
		pos, err := f.Seek(0, io.SeekCurrent)
		if err != nil {
			return err
		}
		offset = pos

		if s.isCommitted(seq, start) {
			continue
		}
		s.pending = append(s.pending, recoveredEntry{segmentSeq: seq, offset: start, item: item})
	}
}

func (s *segmentStore) isCommitted(seq int, offset int64) bool {
	key := commitKey(seq, offset)
	var committed bool
	_ = s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(commitBucket)
		committed = b.Get(key) != nil
		return nil
	})
	return committed
}

func commitKey(seq int, offset int64) []byte {
	return []byte(fmt.Sprintf("%06d:%d", seq, offset))
}

func (s *segmentStore) openActiveForAppend() error {
	if s.activeSeq == 0 {
		if seqs, err := s.listSegmentSeqs(); err == nil && len(seqs) > 0 {
			s.activeSeq = seqs[len(seqs)-1]
		} else {
			s.activeSeq = 1
		}
	}
	f, err := os.OpenFile(segmentPath(s.dir, s.activeSeq), os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	s.activeFile = f
	return nil
}

// append writes item to the active segment, rotating to a new segment
// first if the active one has grown past maxBytes.
func (s *segmentStore) append(item types.DispatchItem) (seq int, offset int64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := s.activeFile.Stat()
	if err != nil {
		return 0, 0, err
	}
	if info.Size() >= s.maxBytes {
		if err := s.rotateLocked(); err != nil {
			return 0, 0, err
		}
	}

	offset, err = s.activeFile.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, 0, err
	}
	record := encodeRecord(item)
	if _, err := s.activeFile.Write(record); err != nil {
		return 0, 0, err
	}
	if err := s.activeFile.Sync(); err != nil {
		return 0, 0, err
	}
	return s.activeSeq, offset, nil
}

func (s *segmentStore) rotateLocked() error {
	if err := s.activeFile.Close(); err != nil {
		return err
	}
	s.activeSeq++
	f, err := os.OpenFile(segmentPath(s.dir, s.activeSeq), os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	s.activeFile = f
	return s.reclaimLocked()
}

// reclaimLocked deletes any non-active segment whose every record has
// been committed.
func (s *segmentStore) reclaimLocked() error {
	seqs, err := s.listSegmentSeqs()
	if err != nil {
		return err
	}
	for _, seq := range seqs {
		if seq == s.activeSeq {
			continue
		}
		fullyCommitted, err := s.segmentFullyCommitted(seq)
		if err != nil || !fullyCommitted {
			continue
		}
		_ = os.Remove(segmentPath(s.dir, seq))
	}
	return nil
}

func (s *segmentStore) segmentFullyCommitted(seq int) (bool, error) {
	f, err := os.Open(segmentPath(s.dir, seq))
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, err
	}
	defer f.Close()

	var offset int64
	for {
		start := offset
		_, err := decodeRecord(f)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return true, nil
			}
			// A non-active segment should never contain a truncated
			// record; treat it as unresolved rather than reclaim data
			// we can't account for.
			return false, nil
		}
		pos, err := f.Seek(0, io.SeekCurrent)
		if err != nil {
			return false, err
		}
		offset = pos
		if !s.isCommitted(seq, start) {
			return false, nil
		}
	}
}

// commit marks the record at (seq, offset) committed in the side index.
func (s *segmentStore) commit(seq int, offset int64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(commitBucket)
		return b.Put(commitKey(seq, offset), []byte{1})
	})
}

func (s *segmentStore) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	if s.activeFile != nil {
		if err := s.activeFile.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := s.db.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
