package mode

import (
	"context"
	"sync"
	"time"
)

// FakeIO is an in-memory device for tests. Each write consumes the next
// entry of WriteErrs; a nil entry, or an exhausted list, succeeds.
type FakeIO struct {
	mu sync.Mutex

	// Clock, if set, timestamps writes.
	Clock     func() time.Time
	WriteErrs []error
	ReadErr   error
	// Stuck devices accept writes without changing their value.
	Stuck bool

	value  int
	writes []time.Time
	reads  int
}

func (f *FakeIO) WriteMode(_ context.Context, _ string, _ uint16, value int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	at := time.Time{}
	if f.Clock != nil {
		at = f.Clock()
	}
	f.writes = append(f.writes, at)
	if len(f.WriteErrs) > 0 {
		err := f.WriteErrs[0]
		f.WriteErrs = f.WriteErrs[1:]
		if err != nil {
			return err
		}
	}
	if !f.Stuck {
		f.value = value
	}
	return nil
}

func (f *FakeIO) ReadMode(context.Context, string, uint16) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.ReadErr != nil {
		return 0, f.ReadErr
	}
	return f.value, nil
}

// SetValue changes the device-side value, e.g. to simulate a revert.
func (f *FakeIO) SetValue(v int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.value = v
}

// Writes returns the timestamps of every write.
func (f *FakeIO) Writes() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Time(nil), f.writes...)
}

// Reads returns the number of reads.
func (f *FakeIO) Reads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}

// MemoryStore keeps Records in a map.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
	// Err, if set, fails every call.
	Err error
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) Load(_ context.Context, deviceID string) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return Record{}, false, s.Err
	}
	rec, ok := s.records[deviceID]
	return rec, ok, nil
}

func (s *MemoryStore) Save(_ context.Context, deviceID string, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.records[deviceID] = rec
	return nil
}
