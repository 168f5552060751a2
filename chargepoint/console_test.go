package chargepoint

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanLines_StopsWhenDone(t *testing.T) {
	lines := make(chan string)
	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		scanLines(strings.NewReader("quit\nstatus Faulted\ninfo\n"), lines, done)
		close(finished)
	}()

	assert.Equal(t, "quit", <-lines)
	close(done)
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("scanner still blocked after done")
	}
	_, ok := <-lines
	assert.False(t, ok)
}

func TestScanLines_EndOfInput(t *testing.T) {
	lines := make(chan string, 4)
	scanLines(strings.NewReader("start TAG1\nstop"), lines, make(chan struct{}))
	var got []string
	for line := range lines {
		got = append(got, line)
	}
	require.Equal(t, []string{"start TAG1", "stop"}, got)
}
