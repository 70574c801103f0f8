package untarmetrics

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/paulschiretz/pgl-buildaux/pkg/plog"
)

// Metrics defines the interface for collecting and reporting extraction statistics.
type Metrics interface {
	AddEntriesProcessed(n int64)
	AddEntriesSkipped(n int64)
	AddBytesRead(n int64)
	AddBytesWritten(n int64)
	AddPermissionsRepaired(n int64)
	LogSummary(msg string)
	StartProgress(msg string, interval time.Duration)
	StopProgress()
}

// ExtractionMetrics holds the atomic counters for tracking an extraction.
// It is the concrete implementation of the Metrics interface.
type ExtractionMetrics struct {
	EntriesProcessed    atomic.Int64
	EntriesSkipped      atomic.Int64
	BytesRead           atomic.Int64
	BytesWritten        atomic.Int64
	PermissionsRepaired atomic.Int64

	stopChan chan struct{}
}

func (m *ExtractionMetrics) AddEntriesProcessed(n int64)    { m.EntriesProcessed.Add(n) }
func (m *ExtractionMetrics) AddEntriesSkipped(n int64)      { m.EntriesSkipped.Add(n) }
func (m *ExtractionMetrics) AddBytesRead(n int64)           { m.BytesRead.Add(n) }
func (m *ExtractionMetrics) AddBytesWritten(n int64)        { m.BytesWritten.Add(n) }
func (m *ExtractionMetrics) AddPermissionsRepaired(n int64) { m.PermissionsRepaired.Add(n) }

// StartProgress logs the summary every interval until StopProgress is called.
func (m *ExtractionMetrics) StartProgress(msg string, interval time.Duration) {
	m.stopChan = make(chan struct{})
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.LogSummary(msg)
			case <-m.stopChan:
				return
			}
		}
	}()
}

func (m *ExtractionMetrics) StopProgress() {
	if m.stopChan != nil {
		close(m.stopChan)
		m.stopChan = nil
	}
}

// LogSummary logs the current state of the metrics.
func (m *ExtractionMetrics) LogSummary(msg string) {
	read := m.BytesRead.Load()
	written := m.BytesWritten.Load()

	// Expansion of the archive on disk (avoid division by zero)
	var ratio float64
	if read > 0 {
		ratio = float64(written) / float64(read) * 100.0
	}

	plog.Info(msg,
		"entries_processed", m.EntriesProcessed.Load(),
		"entries_skipped", m.EntriesSkipped.Load(),
		"permissions_repaired", m.PermissionsRepaired.Load(),
		"bytes_read", fmt.Sprintf("%d", read),
		"bytes_written", fmt.Sprintf("%d", written),
		"ratio_pct", fmt.Sprintf("%.2f%%", ratio),
	)
}

// NoopMetrics is an implementation of the Metrics interface that performs no operations.
// It can be used to disable metrics collection without changing the calling code.
type NoopMetrics struct{}

func (m *NoopMetrics) AddEntriesProcessed(n int64)                      {}
func (m *NoopMetrics) AddEntriesSkipped(n int64)                        {}
func (m *NoopMetrics) AddBytesRead(n int64)                             {}
func (m *NoopMetrics) AddBytesWritten(n int64)                          {}
func (m *NoopMetrics) AddPermissionsRepaired(n int64)                   {}
func (m *NoopMetrics) LogSummary(msg string)                            {}
func (m *NoopMetrics) StartProgress(msg string, interval time.Duration) {}
func (m *NoopMetrics) StopProgress()                                    {}

// Statically assert that our types implement the interface.
var _ Metrics = (*ExtractionMetrics)(nil)
var _ Metrics = (*NoopMetrics)(nil)
