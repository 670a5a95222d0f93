package gpio

import (
	"errors"
	"sync"
)

// FakeReader is a test double that returns scripted pin values.
type FakeReader struct {
	mu sync.Mutex

	// Samples contains scripted pin states. Each call to Read() consumes the
	// next sample; the last one repeats once they run out.
	Samples [][]bool

	index int

	// Closed tracks if Close was called
	Closed bool

	// ReadError, if set, will be returned by Read()
	ReadError error
}

// NewFakeReader creates a FakeReader with the given samples.
func NewFakeReader(samples ...[]bool) *FakeReader {
	return &FakeReader{Samples: samples}
}

// Read returns a copy of the next scripted sample.
func (f *FakeReader) Read() ([]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ReadError != nil {
		return nil, f.ReadError
	}

	if len(f.Samples) == 0 {
		return nil, errors.New("no samples configured")
	}

	sample := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}

	return append([]bool(nil), sample...), nil
}

// Close marks the reader as closed.
func (f *FakeReader) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// Reset resets the reader to the beginning of samples.
func (f *FakeReader) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.index = 0
	f.Closed = false
}
