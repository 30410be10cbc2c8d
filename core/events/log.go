package events

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"xlend/core/types"
	"xlend/storage"
)

// DefaultLogCapacity bounds the number of records retained by NewLog when no
// explicit capacity is supplied.
const DefaultLogCapacity = 10_000

var (
	logNextKey      = []byte("events/next")
	logRecordPrefix = []byte("events/records/")
)

// Record is a sequenced entry of the event log.
type Record struct {
	Seq   uint64       `json:"seq"`
	Event *types.Event `json:"event"`
}

// Log is an append-only, sequence-numbered event sink. Relayers poll it with
// Since and track the last sequence they processed, so delivery is
// at-least-once from their point of view. Only the newest capacity records are
// retained; sequence numbers keep increasing regardless.
//
// A log opened with OpenLog writes every record and the next sequence to the
// database, so numbering continues across restarts.
type Log struct {
	mu       sync.RWMutex
	capacity int
	next     uint64
	ring     []Record
	head     int

	db      storage.Database
	onError func(error)
}

// NewLog constructs an empty in-memory log. A non-positive capacity selects
// DefaultLogCapacity.
func NewLog(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultLogCapacity
	}
	return &Log{capacity: capacity, next: 1}
}

// OpenLog restores the log persisted in db and keeps writing to it.
func OpenLog(db storage.Database, capacity int) (*Log, error) {
	if db == nil {
		return nil, fmt.Errorf("events: database must not be nil")
	}
	l := NewLog(capacity)
	l.db = db
	raw, err := db.Get(logNextKey)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return l, nil
	case err != nil:
		return nil, fmt.Errorf("events: load sequence: %w", err)
	case len(raw) != 8:
		return nil, fmt.Errorf("events: corrupt sequence record")
	}
	l.next = binary.BigEndian.Uint64(raw)
	first := uint64(1)
	if l.next > uint64(l.capacity) {
		first = l.next - uint64(l.capacity)
	}
	for seq := first; seq < l.next; seq++ {
		data, err := db.Get(recordKey(seq))
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("events: load record %d: %w", seq, err)
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("events: decode record %d: %w", seq, err)
		}
		l.push(rec)
	}
	return l, nil
}

// SetErrorHandler registers fn to observe persistence failures. The record
// stays available in memory when the write fails.
func (l *Log) SetErrorHandler(fn func(error)) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.onError = fn
	l.mu.Unlock()
}

func recordKey(seq uint64) []byte {
	key := make([]byte, len(logRecordPrefix)+8)
	copy(key, logRecordPrefix)
	binary.BigEndian.PutUint64(key[len(logRecordPrefix):], seq)
	return key
}

// Emit appends the event when it carries a canonical payload. Events without
// a payload are recorded with their type only.
func (l *Log) Emit(evt Event) {
	if l == nil || evt == nil {
		return
	}
	var payload *types.Event
	if p, ok := evt.(Payload); ok {
		payload = p.Event().Clone()
	}
	if payload == nil {
		payload = &types.Event{Type: evt.EventType(), Attributes: map[string]string{}}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	rec := Record{Seq: l.next, Event: payload}
	if err := l.persist(rec); err != nil && l.onError != nil {
		l.onError(err)
	}
	l.push(rec)
	l.next++
}

func (l *Log) persist(rec Record) error {
	if l.db == nil {
		return nil
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("events: encode record %d: %w", rec.Seq, err)
	}
	var next [8]byte
	binary.BigEndian.PutUint64(next[:], rec.Seq+1)
	batch := l.db.NewBatch()
	batch.Put(recordKey(rec.Seq), data)
	batch.Put(logNextKey, next[:])
	if rec.Seq > uint64(l.capacity) {
		batch.Delete(recordKey(rec.Seq - uint64(l.capacity)))
	}
	if err := batch.Write(); err != nil {
		return fmt.Errorf("events: persist record %d: %w", rec.Seq, err)
	}
	return nil
}

// push stores rec in the ring, overwriting the oldest record once full.
func (l *Log) push(rec Record) {
	if len(l.ring) < l.capacity {
		l.ring = append(l.ring, rec)
		return
	}
	l.ring[l.head] = rec
	l.head = (l.head + 1) % l.capacity
}

func (l *Log) at(i int) Record { return l.ring[(l.head+i)%len(l.ring)] }

// Since returns up to limit records whose sequence is strictly greater than
// after. A non-positive limit returns everything available.
func (l *Log) Since(after uint64, limit int) []Record {
	if l == nil {
		return nil
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	n := len(l.ring)
	start := sort.Search(n, func(i int) bool { return l.at(i).Seq > after })
	count := n - start
	if limit > 0 && count > limit {
		count = limit
	}
	out := make([]Record, 0, count)
	for i := start; i < start+count; i++ {
		rec := l.at(i)
		out = append(out, Record{Seq: rec.Seq, Event: rec.Event.Clone()})
	}
	return out
}

// LastSeq returns the sequence number of the newest record, or zero when
// nothing has been emitted.
func (l *Log) LastSeq() uint64 {
	if l == nil {
		return 0
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.next - 1
}
