package progress

import (
	"bytes"
	"strings"
	"sync"
	"testing"
)

type label string

func (l label) String() string { return string(l) }

func TestDisabledBarStillRunsInterrupt(t *testing.T) {
	b := New(false, nil)
	ran := false
	b.Interrupt(func() { ran = true })
	b.Describe(label("ignored"))
	b.Finish(label("ignored"))

	if !ran {
		t.Error("Interrupt must run its function on a disabled bar")
	}
}

func TestFinishPrintsSummary(t *testing.T) {
	var buf bytes.Buffer
	b := New(true, &buf)
	b.Describe(label("scanning"))
	b.Finish(label("done"))

	if !strings.Contains(buf.String(), "✔ done") {
		t.Errorf("output %q does not contain the final message", buf.String())
	}
}

// TestConcurrentInterruptAndDescribe is meaningful under -race.
func TestConcurrentInterruptAndDescribe(t *testing.T) {
	var buf bytes.Buffer
	b := New(true, &buf)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			b.Interrupt(func() {})
		}
	}()
	for i := 0; i < 200; i++ {
		b.Describe(label("scanning"))
	}
	wg.Wait()
	b.Finish(label("done"))
}
