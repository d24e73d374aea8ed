package durable

import (
	"errors"
	"sync"
)

var (
	ErrClosed      = errors.New("store is closed")
	ErrWriteFailed = errors.New("write failed")
)

type Store interface {
	SetState(dataID string, state []byte) error
	GetState(dataID string) ([]byte, error)
	Delete(dataID string) error
	Flush() error
	Close() error
}

// MemStore keeps state in memory. It survives a simulated node restart as
// long as the same MemStore is handed to the new incarnation.
type MemStore struct {
	mu     sync.Mutex
	states map[string][]byte
	closed bool

	// FailWrites makes SetState fail, simulating a broken disk.
	FailWrites bool
	Writes     int
}

func NewMemStore() *MemStore {
	return &MemStore{states: make(map[string][]byte)}
}

func (ms *MemStore) SetState(dataID string, state []byte) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if ms.closed {
		return ErrClosed
	}
	if ms.FailWrites {
		return ErrWriteFailed
	}
	ms.states[dataID] = append([]byte(nil), state...)
	ms.Writes++
	return nil
}

func (ms *MemStore) GetState(dataID string) ([]byte, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if ms.closed {
		return nil, ErrClosed
	}
	state, found := ms.states[dataID]
	if !found {
		return nil, nil
	}
	return append([]byte(nil), state...), nil
}

func (ms *MemStore) Delete(dataID string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if ms.closed {
		return ErrClosed
	}
	delete(ms.states, dataID)
	return nil
}

// Len returns the number of data ids stored.
func (ms *MemStore) Len() int {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return len(ms.states)
}

func (ms *MemStore) Flush() error {
	return nil
}

func (ms *MemStore) Close() error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.closed = true
	return nil
}

// Reopen undoes Close, for tests that restart a node on the same store.
func (ms *MemStore) Reopen() {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.closed = false
}
