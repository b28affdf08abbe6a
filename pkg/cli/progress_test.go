package cli

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"
)

func TestSimpleProgress(t *testing.T) {
	buf := &bytes.Buffer{}
	progress := NewProgressReporter(buf).(*SimpleProgress)

	progress.Start(4)
	progress.Record(nil)
	progress.Record(nil)
	progress.Record(errors.New("backend unavailable"))
	progress.Record(nil)
	progress.Finish()

	ok, failed := progress.Counts()
	if ok != 3 || failed != 1 {
		t.Errorf("Counts() = %d, %d; want 3, 1", ok, failed)
	}

	out := buf.String()
	for _, want := range []string{"4/4", "ok=3", "failed=1", "100.0%", "last error: backend unavailable"} {
		if !strings.Contains(out, want) {
			t.Errorf("output lacks %q:\n%s", want, out)
		}
	}
}

func TestSimpleProgress_ZeroTotal(t *testing.T) {
	buf := &bytes.Buffer{}
	progress := NewProgressReporter(buf)

	progress.Start(0)
	progress.Record(nil)
	progress.Finish()

	if strings.Contains(buf.String(), "[") {
		t.Errorf("no bar expected for zero total, got %q", buf.String())
	}
}

func TestSimpleProgress_Concurrent(t *testing.T) {
	buf := &bytes.Buffer{}
	progress := NewProgressReporter(buf).(*SimpleProgress)
	progress.Start(100)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				if worker == 0 {
					progress.Record(errors.New("fail"))
				} else {
					progress.Record(nil)
				}
			}
		}(i)
	}
	wg.Wait()
	progress.Finish()

	ok, failed := progress.Counts()
	if ok != 90 || failed != 10 {
		t.Errorf("Counts() = %d, %d; want 90, 10", ok, failed)
	}
}

func TestNewProgressReporterNilWriter(t *testing.T) {
	progress := NewProgressReporter(nil)
	if progress == nil {
		t.Fatal("NewProgressReporter(nil) returned nil")
	}
	if progress.(*SimpleProgress).writer == nil {
		t.Error("nil writer should default to stderr")
	}
}
