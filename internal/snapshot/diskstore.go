package snapshot

import (
	"bytes"
	"encoding/gob"
	"sort"
	"sync"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"waybackproxy/internal/lru"
)

// Answer is the result of an availability lookup. Found is false when the
// archive holds no capture of the URL.
type Answer struct {
	Timestamp string
	Found     bool
}

const (
	answerPrefix = "a:"
	metaPrefix   = "m:"
)

func answerKey(key string) []byte { return []byte(answerPrefix + key) }
func metaKey(key string) []byte   { return []byte(metaPrefix + key) }

type diskMeta struct {
	Size       int64
	LastAccess int64 // unix seconds
}

// expired reports whether an entry last read at m.LastAccess has outlived
// ttl by now. A zero ttl never expires.
func (m diskMeta) expired(now int64, ttl time.Duration) bool {
	return ttl > 0 && now-m.LastAccess > int64(ttl/time.Second)
}

type diskOp struct {
	putKey string
	putAns *Answer
	delKey string
	flush  chan struct{}
}

// DiskStore persists availability answers in leveldb so restarts do not
// re-query the archive. Writes go through a single writer goroutine; reads
// hit leveldb directly.
type DiskStore struct {
	maxBytes int64
	ttl      time.Duration
	now      lru.Clock

	db *leveldb.DB

	mu        sync.Mutex
	index     map[string]diskMeta
	totalSize int64

	// sendMu guards ops against a send racing Close. Senders hold the read
	// lock; Close takes the write lock before closing the channel.
	sendMu sync.RWMutex
	closed bool
	ops    chan diskOp
	done   chan struct{}
}

// OpenDiskStore opens (or creates) the store at path. Entries not accessed
// for longer than ttl are misses; ttl <= 0 keeps them forever. Entries that
// expired while the store was closed are dropped on open.
func OpenDiskStore(path string, maxBytes int64, ttl time.Duration, clock lru.Clock) (*DiskStore, error) {
	if clock == nil {
		clock = time.Now
	}
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	d := &DiskStore{
		maxBytes: maxBytes,
		ttl:      ttl,
		now:      clock,
		db:       db,
		ops:      make(chan diskOp, 1024),
		done:     make(chan struct{}),
	}
	if d.index, d.totalSize, err = d.scanIndex(); err != nil {
		_ = db.Close()
		return nil, err
	}
	go d.writerLoop()
	return d, nil
}

// Close applies the writes queued so far and closes the database. Calls
// made after Close are misses or no-ops.
func (d *DiskStore) Close() error {
	d.sendMu.Lock()
	if d.closed {
		d.sendMu.Unlock()
		return nil
	}
	d.closed = true
	close(d.ops)
	d.sendMu.Unlock()

	<-d.done
	return d.db.Close()
}

// send queues op for the writer. It reports false once the store is closed.
func (d *DiskStore) send(op diskOp) bool {
	d.sendMu.RLock()
	defer d.sendMu.RUnlock()
	if d.closed {
		return false
	}
	d.ops <- op
	return true
}

// scanIndex rebuilds the in-memory index from the meta records, pruning
// expired and unreadable entries as it goes.
func (d *DiskStore) scanIndex() (map[string]diskMeta, int64, error) {
	now := d.now().Unix()
	idx := map[string]diskMeta{}
	var total int64
	stale := new(leveldb.Batch)

	it := d.db.NewIterator(util.BytesPrefix([]byte(metaPrefix)), nil)
	for it.Next() {
		key := string(it.Key()[len(metaPrefix):])
		meta, err := decode[diskMeta](it.Value())
		if err != nil || meta.expired(now, d.ttl) {
			stale.Delete(answerKey(key))
			stale.Delete(metaKey(key))
			continue
		}
		idx[key] = meta
		total += meta.Size
	}
	it.Release()
	if err := it.Error(); err != nil {
		return nil, 0, err
	}
	if stale.Len() > 0 {
		if err := d.db.Write(stale, nil); err != nil {
			return nil, 0, err
		}
	}
	return idx, total, nil
}

func (d *DiskStore) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.index)
}

func (d *DiskStore) TotalSize() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.totalSize
}

// Get returns the stored answer for key and refreshes its access time.
func (d *DiskStore) Get(key string) (Answer, bool) {
	now := d.now().Unix()
	d.mu.Lock()
	meta, ok := d.index[key]
	d.mu.Unlock()
	if !ok {
		return Answer{}, false
	}
	if meta.expired(now, d.ttl) {
		d.send(diskOp{delKey: key})
		return Answer{}, false
	}

	b, err := d.db.Get(answerKey(key), nil)
	if err != nil {
		return Answer{}, false
	}
	ans, err := decode[Answer](b)
	if err != nil {
		return Answer{}, false
	}

	d.mu.Lock()
	if meta, exists := d.index[key]; exists {
		meta.LastAccess = now
		d.index[key] = meta
	}
	d.mu.Unlock()
	d.send(diskOp{putKey: key}) // meta touch
	return ans, true
}

// PutAsync queues ans for writing.
func (d *DiskStore) PutAsync(key string, ans Answer) {
	d.send(diskOp{putKey: key, putAns: &ans})
}

func (d *DiskStore) Delete(key string) {
	d.send(diskOp{delKey: key})
}

// Flush blocks until every queued write has been applied.
func (d *DiskStore) Flush() {
	ch := make(chan struct{})
	if d.send(diskOp{flush: ch}) {
		<-ch
	}
}

func (d *DiskStore) writerLoop() {
	defer close(d.done)
	for op := range d.ops {
		switch {
		case op.flush != nil:
			close(op.flush)
		case op.delKey != "":
			d.applyDelete(op.delKey)
		case op.putKey != "":
			d.applyPutOrTouch(op.putKey, op.putAns)
		}
	}
}

func (d *DiskStore) applyPutOrTouch(key string, ans *Answer) {
	now := d.now().Unix()
	batch := new(leveldb.Batch)

	if ans == nil {
		d.mu.Lock()
		meta, ok := d.index[key]
		d.mu.Unlock()
		if !ok {
			return
		}
		mb, _ := encode(meta)
		batch.Put(metaKey(key), mb)
		_ = d.db.Write(batch, nil)
		return
	}

	b, err := encode(*ans)
	if err != nil {
		return
	}
	meta := diskMeta{Size: int64(len(b)) + int64(len(key)), LastAccess: now}

	d.mu.Lock()
	if old, ok := d.index[key]; ok {
		d.totalSize -= old.Size
	}
	d.index[key] = meta
	d.totalSize += meta.Size
	over := d.maxBytes > 0 && d.totalSize > d.maxBytes
	d.mu.Unlock()

	batch.Put(answerKey(key), b)
	mb, _ := encode(meta)
	batch.Put(metaKey(key), mb)
	_ = d.db.Write(batch, nil)

	if over {
		d.evictSome()
	}
}

// applyDelete forgets key in the index first so a concurrent Get misses
// instead of reading a half-deleted entry.
func (d *DiskStore) applyDelete(key string) {
	d.mu.Lock()
	meta, ok := d.index[key]
	if ok {
		d.totalSize -= meta.Size
		delete(d.index, key)
	}
	d.mu.Unlock()
	if !ok {
		return
	}

	batch := new(leveldb.Batch)
	batch.Delete(answerKey(key))
	batch.Delete(metaKey(key))
	_ = d.db.Write(batch, nil)
}

// evictSome drops the least recently accessed tenth of the store.
func (d *DiskStore) evictSome() {
	type keyMeta struct {
		key string
		m   diskMeta
	}
	d.mu.Lock()
	items := make([]keyMeta, 0, len(d.index))
	for k, m := range d.index {
		items = append(items, keyMeta{k, m})
	}
	d.mu.Unlock()

	sort.Slice(items, func(i, j int) bool {
		if items[i].m.LastAccess == items[j].m.LastAccess {
			return items[i].key < items[j].key
		}
		return items[i].m.LastAccess < items[j].m.LastAccess
	})

	n := len(items) / 10
	if n < 1 {
		n = 1
	}
	for i := 0; i < n && i < len(items); i++ {
		d.applyDelete(items[i].key)
	}
}

func encode[T any](v T) ([]byte, error) {
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(v)
	return buf.Bytes(), err
}

func decode[T any](b []byte) (T, error) {
	var v T
	err := gob.NewDecoder(bytes.NewReader(b)).Decode(&v)
	return v, err
}
