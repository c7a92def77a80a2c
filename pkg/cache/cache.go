package cache

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/polestar-community/polestar-go/pkg/fieldpath"
)

// Query identifies one of the fixed GraphQL queries whose results are cached.
type Query int

const (
	QueryVehicleList Query = iota
	QueryOdometer
	QueryBattery
)

// String returns the key the query's payload appears under in the API's data object.
func (q Query) String() string {
	switch q {
	case QueryVehicleList:
		return "getConsumerCarsV2"
	case QueryOdometer:
		return "getOdometerData"
	case QueryBattery:
		return "getBatteryData"
	}
	return "unknown"
}

// Entry is a cached query result. Data holds the raw JSON payload, or the null marker when the
// query succeeded but returned nothing.
type Entry struct {
	Data      json.RawMessage
	Timestamp time.Time
}

func (e Entry) null() bool {
	return len(e.Data) == 0 || string(e.Data) == "null"
}

// Store maps query kinds to their most recently fetched results. Entries are replaced wholesale
// on each Put and never deleted. All methods are safe for concurrent use.
type Store struct {
	ttl     time.Duration
	lock    sync.Mutex
	entries map[Query]Entry
	now     func() time.Time // overridden in tests
}

// NewStore returns an empty Store whose entries stay fresh for ttl after each Put.
func NewStore(ttl time.Duration) *Store {
	return &Store{
		ttl:     ttl,
		entries: make(map[Query]Entry),
		now:     time.Now,
	}
}

// Put replaces the entry for query with data and the current time. Passing nil data records the
// explicit "fetched, nothing there" marker.
func (s *Store) Put(query Query, data json.RawMessage) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.entries[query] = Entry{Data: data, Timestamp: s.now()}
}

// GetFresh resolves path against the entry for query, returning nil when the entry is missing,
// stale, or holds the null marker. A stale entry reads as nothing, not as the stale value.
func (s *Store) GetFresh(query Query, path string) interface{} {
	s.lock.Lock()
	defer s.lock.Unlock()
	entry, ok := s.entries[query]
	if !ok || !s.fresh(entry) || entry.null() {
		return nil
	}
	return fieldpath.GetBytes(path, entry.Data).Value()
}

// GetAny resolves path against the entry for query regardless of the entry's age, returning nil
// only when the entry is missing or holds the null marker.
func (s *Store) GetAny(query Query, path string) interface{} {
	s.lock.Lock()
	defer s.lock.Unlock()
	entry, ok := s.entries[query]
	if !ok || entry.null() {
		return nil
	}
	return fieldpath.GetBytes(path, entry.Data).Value()
}

// Latest returns the last known value at path for query, independent of the TTL.
func (s *Store) Latest(query Query, path string) interface{} {
	return s.GetAny(query, path)
}

// An entry is fresh iff now < timestamp + ttl. No jitter, no sliding expiry on read.
func (s *Store) fresh(entry Entry) bool {
	return s.now().Before(entry.Timestamp.Add(s.ttl))
}
