package worker

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"iter"
	"sync"
)

// Stream identifies which output of a process a line came from.
type Stream int

const (
	Stdout Stream = iota
	Stderr
)

// Line is one line of process output, without its terminator.
type Line struct {
	Stream Stream
	Text   string
}

// RunFunc produces output on stdout and stderr and reports an exit code.
// A non-nil error means the work could not run at all.
type RunFunc func(ctx context.Context, stdout, stderr io.Writer) (int, error)

// Execution is a unit of work whose output is consumed as a lazy sequence
// of lines. Nothing runs until Lines is ranged over (or Wait is called); the
// sequence ends when the work has exited and both streams are drained.
type Execution struct {
	ctx context.Context
	run RunFunc

	mu       sync.Mutex
	started  bool
	finished chan struct{}
	code     int
	err      error
}

// NewExecution wraps run. ctx bounds the work.
func NewExecution(ctx context.Context, run RunFunc) *Execution {
	return &Execution{ctx: ctx, run: run, finished: make(chan struct{})}
}

// maxLineBytes caps a single emitted line; longer lines are split.
const maxLineBytes = 256 * 1024

// Lines returns the output sequence. It can be ranged over once; lines of
// one stream keep their order, lines of different streams interleave in
// arrival order. Breaking out of the loop cancels the work.
func (e *Execution) Lines() iter.Seq[Line] {
	return func(yield func(Line) bool) {
		e.mu.Lock()
		if e.started {
			e.mu.Unlock()
			return
		}
		e.started = true
		e.mu.Unlock()

		ctx, cancel := context.WithCancel(e.ctx)
		defer cancel()

		outR, outW := io.Pipe()
		errR, errW := io.Pipe()

		type result struct {
			code int
			err  error
		}
		done := make(chan result, 1)
		go func() {
			code, err := e.run(ctx, outW, errW)
			_ = outW.Close()
			_ = errW.Close()
			done <- result{code, err}
		}()

		lines := make(chan Line)
		var wg sync.WaitGroup
		wg.Add(2)
		go scanLines(outR, Stdout, lines, &wg)
		go scanLines(errR, Stderr, lines, &wg)
		go func() {
			wg.Wait()
			close(lines)
		}()

		stopped := false
		for l := range lines {
			if stopped {
				continue
			}
			if !yield(l) {
				stopped = true
				cancel()
			}
		}

		r := <-done
		e.code, e.err = r.code, r.err
		close(e.finished)
	}
}

// Wait returns the exit code once the work has finished. When the lines
// were never consumed it runs the work and discards the output.
func (e *Execution) Wait() (int, error) {
	e.mu.Lock()
	started := e.started
	e.mu.Unlock()
	if !started {
		for range e.Lines() {
		}
	}
	<-e.finished
	return e.code, e.err
}

func scanLines(r *io.PipeReader, stream Stream, out chan<- Line, wg *sync.WaitGroup) {
	defer wg.Done()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	sc.Split(splitLines)
	for sc.Scan() {
		if text := string(bytes.TrimRight(sc.Bytes(), " \t")); text != "" {
			out <- Line{Stream: stream, Text: text}
		}
	}
	// Keep the writer unblocked if scanning stopped early.
	_, _ = io.Copy(io.Discard, r)
}

// splitLines splits on '\n' or '\r' so progress output that rewrites a
// terminal line still arrives as separate lines.
func splitLines(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF || len(data) >= maxLineBytes {
		return len(data), data, nil
	}
	return 0, nil, nil
}
