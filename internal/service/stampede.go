package service

import "sync"

// missCounter counts in-flight cache misses per key. More than one concurrent miss
// on a key is a stampede.
type missCounter struct {
	mu       sync.Mutex
	inFlight map[string]int
}

func newMissCounter() *missCounter {
	return &missCounter{inFlight: make(map[string]int)}
}

// begin registers a miss on key and returns the number of misses now in flight
// for it, including this one. release must be called once the miss resolves.
func (m *missCounter) begin(key string) (n int, release func()) {
	m.mu.Lock()
	m.inFlight[key]++
	n = m.inFlight[key]
	m.mu.Unlock()

	var once sync.Once
	return n, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if m.inFlight[key] <= 1 {
				delete(m.inFlight, key)
				return
			}
			m.inFlight[key]--
		})
	}
}

// active reports the misses in flight for key.
func (m *missCounter) active(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inFlight[key]
}
