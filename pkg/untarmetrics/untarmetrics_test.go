package untarmetrics

import (
	"bytes"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/paulschiretz/pgl-buildaux/pkg/plog"
)

func TestExtractionMetrics_Adders(t *testing.T) {
	m := &ExtractionMetrics{}

	m.AddEntriesProcessed(7)
	m.AddEntriesSkipped(1)
	m.AddBytesRead(300)
	m.AddBytesWritten(900)
	m.AddPermissionsRepaired(6)

	if got := m.EntriesProcessed.Load(); got != 7 {
		t.Errorf("expected EntriesProcessed to be 7, got %d", got)
	}
	if got := m.EntriesSkipped.Load(); got != 1 {
		t.Errorf("expected EntriesSkipped to be 1, got %d", got)
	}
	if got := m.BytesRead.Load(); got != 300 {
		t.Errorf("expected BytesRead to be 300, got %d", got)
	}
	if got := m.BytesWritten.Load(); got != 900 {
		t.Errorf("expected BytesWritten to be 900, got %d", got)
	}
	if got := m.PermissionsRepaired.Load(); got != 6 {
		t.Errorf("expected PermissionsRepaired to be 6, got %d", got)
	}
}

func TestExtractionMetrics_Log(t *testing.T) {
	var logBuf bytes.Buffer
	plog.SetOutput(&logBuf)
	t.Cleanup(func() { plog.SetOutput(os.Stderr) }) // Restore original output after test.

	m := &ExtractionMetrics{}
	m.AddEntriesProcessed(3)
	m.AddPermissionsRepaired(3)
	m.AddBytesRead(100)
	m.AddBytesWritten(250)
	m.LogSummary("Test Extraction Summary")

	output := logBuf.String()
	for _, want := range []string{
		"msg=\"Test Extraction Summary\"",
		"entries_processed=3",
		"permissions_repaired=3",
		"bytes_read=100",
		"bytes_written=250",
		"ratio_pct=250.00%",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected log output to contain %q, got: %s", want, output)
		}
	}
}

func TestExtractionMetrics_Progress(t *testing.T) {
	var logBuf bytes.Buffer
	plog.SetOutput(&logBuf)
	t.Cleanup(func() { plog.SetOutput(os.Stderr) })

	m := &ExtractionMetrics{}
	m.StartProgress("progress", time.Hour)
	m.StopProgress()
	m.StopProgress() // second stop is a no-op

	if strings.Contains(logBuf.String(), "progress") {
		t.Errorf("expected no progress line before the first tick, got: %s", logBuf.String())
	}
}

func TestNoopMetrics(t *testing.T) {
	var m Metrics = &NoopMetrics{}
	m.AddEntriesProcessed(1)
	m.StartProgress("noop", time.Millisecond)
	m.StopProgress()
	m.LogSummary("noop")
}
