// Package mux moves bytes between a supervised process and its session:
// output chunks out as they arrive, client input in, in order.
package mux

import (
	"context"
	"errors"
	"io"
	"sync"
	"unicode/utf8"

	"liverun/internal/runner/result"
	"liverun/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	StreamStdout = "stdout"
	StreamStderr = "stderr"
)

const (
	defaultChunkSize       = 32 * 1024
	defaultMaxPendingInput = 1 << 20
)

// ErrInputOverflow is returned by Write when the program is not consuming input
// fast enough and the pending queue is full.
var ErrInputOverflow = errors.New("stdin queue is full")

// Target is the process side of a pump.
type Target interface {
	Stdin() io.WriteCloser
	Stdout() io.Reader
	Stderr() io.Reader
	KillWithReason(reason result.ExitReason)
}

// Sink receives output chunks. It is called concurrently from the stdout and
// stderr readers and must not retain data.
type Sink func(stream string, data []byte)

// Options tune a pump. Zero values select defaults; MaxOutputBytes 0 means unlimited.
type Options struct {
	MaxOutputBytes  int64
	ChunkSize       int
	MaxPendingInput int
}

// Pump connects one process to one sink.
type Pump struct {
	target Target
	sink   Sink
	opts   Options

	outMu    sync.Mutex
	emitted  int64
	exceeded bool

	inMu         sync.Mutex
	queue        [][]byte
	pending      int
	inputClosed  bool
	writerFailed bool
	notify       chan struct{}

	readers sync.WaitGroup
	done    chan struct{}
}

// Start begins forwarding immediately. The returned pump is finished when Done closes.
func Start(ctx context.Context, target Target, sink Sink, opts Options) *Pump {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = defaultChunkSize
	}
	if opts.MaxPendingInput <= 0 {
		opts.MaxPendingInput = defaultMaxPendingInput
	}
	p := &Pump{
		target: target,
		sink:   sink,
		opts:   opts,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	p.readers.Add(2)
	go p.readLoop(ctx, StreamStdout, target.Stdout())
	go p.readLoop(ctx, StreamStderr, target.Stderr())
	go func() {
		p.readers.Wait()
		close(p.done)
	}()
	go p.writeLoop(ctx)
	return p
}

// Done is closed once both output streams reached EOF and every chunk was handed to the sink.
func (p *Pump) Done() <-chan struct{} {
	return p.done
}

// OutputExceeded reports whether the output ceiling was hit.
func (p *Pump) OutputExceeded() bool {
	p.outMu.Lock()
	defer p.outMu.Unlock()
	return p.exceeded
}

// Write queues data for the program's stdin. Writes are delivered in call order.
// Data sent after the program stopped reading or exited is discarded.
func (p *Pump) Write(ctx context.Context, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	p.inMu.Lock()
	if p.inputClosed || p.writerFailed || p.finished() {
		p.inMu.Unlock()
		return nil
	}
	if p.pending+len(data) > p.opts.MaxPendingInput {
		p.inMu.Unlock()
		return ErrInputOverflow
	}
	chunk := make([]byte, len(data))
	copy(chunk, data)
	p.queue = append(p.queue, chunk)
	p.pending += len(chunk)
	p.inMu.Unlock()
	p.wake()
	return nil
}

// CloseInput closes the program's stdin once queued writes are flushed.
func (p *Pump) CloseInput() {
	p.inMu.Lock()
	p.inputClosed = true
	p.inMu.Unlock()
	p.wake()
}

// Abort closes the output pipes so readers give up on descendants that escaped
// the process group and still hold them open.
func (p *Pump) Abort() {
	for _, r := range []io.Reader{p.target.Stdout(), p.target.Stderr()} {
		if c, ok := r.(io.Closer); ok {
			_ = c.Close()
		}
	}
}

func (p *Pump) finished() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

func (p *Pump) wake() {
	select {
	case p.notify <- struct{}{}:
	default:
	}
}

func (p *Pump) readLoop(ctx context.Context, stream string, r io.Reader) {
	defer p.readers.Done()
	if c, ok := r.(io.Closer); ok {
		defer c.Close()
	}
	buf := make([]byte, p.opts.ChunkSize)
	var carry []byte
	for {
		n, err := r.Read(buf)
		if n > 0 {
			data := append(carry, buf[:n]...)
			cut := completePrefix(data)
			p.forward(stream, data[:cut])
			carry = append([]byte(nil), data[cut:]...)
		}
		if err != nil {
			if len(carry) > 0 {
				p.forward(stream, carry)
			}
			if !errors.Is(err, io.EOF) {
				logger.Debug(ctx, "output reader stopped", zap.String("stream", stream), zap.Error(err))
			}
			return
		}
	}
}

// forward hands a chunk to the sink within the output budget.
func (p *Pump) forward(stream string, data []byte) {
	if len(data) == 0 {
		return
	}
	allowed, tripped := p.reserve(len(data))
	if allowed < len(data) {
		data = data[:completePrefix(data[:allowed])]
	}
	if len(data) > 0 {
		p.sink(stream, data)
	}
	if tripped {
		p.target.KillWithReason(result.ReasonOutputLimit)
	}
}

// reserve claims up to n bytes of the output budget. tripped is true exactly
// once, for the call that first crosses the ceiling.
func (p *Pump) reserve(n int) (allowed int, tripped bool) {
	p.outMu.Lock()
	defer p.outMu.Unlock()
	if p.opts.MaxOutputBytes <= 0 {
		p.emitted += int64(n)
		return n, false
	}
	remaining := p.opts.MaxOutputBytes - p.emitted
	if remaining >= int64(n) {
		p.emitted += int64(n)
		return n, false
	}
	if remaining < 0 {
		remaining = 0
	}
	p.emitted = p.opts.MaxOutputBytes
	if !p.exceeded {
		p.exceeded = true
		tripped = true
	}
	return int(remaining), tripped
}

func (p *Pump) writeLoop(ctx context.Context) {
	w := p.target.Stdin()
	defer w.Close()
	for {
		chunk, closed := p.next()
		if chunk != nil {
			if _, err := w.Write(chunk); err != nil {
				p.failWriter()
				logger.Debug(ctx, "stdin write stopped", zap.Error(err))
				return
			}
			continue
		}
		if closed {
			return
		}
		select {
		case <-p.notify:
		case <-p.done:
			return
		}
	}
}

func (p *Pump) next() ([]byte, bool) {
	p.inMu.Lock()
	defer p.inMu.Unlock()
	if len(p.queue) > 0 {
		chunk := p.queue[0]
		p.queue[0] = nil
		p.queue = p.queue[1:]
		p.pending -= len(chunk)
		return chunk, false
	}
	return nil, p.inputClosed
}

func (p *Pump) failWriter() {
	p.inMu.Lock()
	p.writerFailed = true
	p.queue = nil
	p.pending = 0
	p.inMu.Unlock()
}

// completePrefix returns the length of b without a trailing incomplete UTF-8
// sequence. Invalid bytes are not held back.
func completePrefix(b []byte) int {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if utf8.RuneStart(b[i]) {
			if utf8.FullRune(b[i:]) {
				return len(b)
			}
			return i
		}
	}
	return len(b)
}
