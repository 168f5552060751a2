package chargepoint

import (
	"bufio"
	"io"
)

// scanLines feeds lines from r into lines and closes it at end of input or once done is closed.
// The reader cannot be interrupted, so the goroutine may block in Scan until the next line or EOF.
func scanLines(r io.Reader, lines chan<- string, done <-chan struct{}) {
	defer close(lines)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		select {
		case lines <- scanner.Text():
		case <-done:
			return
		}
	}
}
