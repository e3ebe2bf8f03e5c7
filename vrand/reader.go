package vrand

import (
	"io"
	"sync"
)

var (
	defaultPool = sync.OnceValues(func() (*Pool, error) {
		return NewPool()
	})

	// defaultStates holds idle states of the default pool. States dropped
	// by the sync.Pool are released by their cleanup.
	defaultStates sync.Pool
)

// Reader is a global, shared instance of a random generator, backed by a
// lazily initialized default pool. It is safe for concurrent use.
var Reader io.Reader = reader{}

type reader struct{}

func (reader) Read(b []byte) (int, error) {
	return Read(b)
}

// Read fills b with random bytes, using the default pool. It returns
// len(b) and a nil error, or 0 and an error.
func Read(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}
	s, err := defaultState()
	if err != nil {
		return 0, err
	}
	defer defaultStates.Put(s)
	if err := s.Fill(b, 0); err != nil {
		return 0, err
	}
	return len(b), nil
}

func defaultState() (*State, error) {
	if s, ok := defaultStates.Get().(*State); ok {
		return s, nil
	}
	pool, err := defaultPool()
	if err != nil {
		return nil, err
	}
	return NewState(pool)
}
