package history

import (
	"context"
	"sync"
	"time"
)

// memoryLog keeps records in memory, for tests and for running without a
// history database.
type memoryLog struct {
	mu         sync.Mutex
	records    []Record
	maxRecords int
	maxAge     time.Duration
}

// NewMemory returns a Log that keeps at most maxRecords records no older
// than maxAge. Zero disables either bound.
func NewMemory(maxRecords int, maxAge time.Duration) Log {
	return &memoryLog{maxRecords: maxRecords, maxAge: maxAge}
}

func (m *memoryLog) Append(_ context.Context, rec Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.records = append(m.records, rec)

	if m.maxAge > 0 {
		cutoff := rec.Timestamp.Add(-m.maxAge)
		kept := m.records[:0]
		for _, r := range m.records {
			if !r.Timestamp.Before(cutoff) {
				kept = append(kept, r)
			}
		}
		m.records = kept
	}
	if m.maxRecords > 0 && len(m.records) > m.maxRecords {
		m.records = append([]Record(nil), m.records[len(m.records)-m.maxRecords:]...)
	}

	return nil
}

func (m *memoryLog) Recent(_ context.Context, n int) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := 0
	if n > 0 && len(m.records) > n {
		start = len(m.records) - n
	}
	return append([]Record(nil), m.records[start:]...), nil
}

func (*memoryLog) Close() error {
	return nil
}
