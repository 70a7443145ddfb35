package runnerclient

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"liverun/internal/runner/protocol"
)

// Result is the outcome of a finished session.
type Result struct {
	Exit protocol.Outbound
	// Exited is false when the session ended without an exit event.
	Exited bool
}

// Code returns the program's exit code, or -1 without an exit event.
func (r Result) Code() int {
	if code, ok := r.Exit.ExitCode(); ok {
		return code
	}
	return -1
}

// Output routes streamed output by stream.
type Output struct {
	Stdout io.Writer
	Stderr io.Writer
	// System receives diagnostics; nil sends them to Stderr.
	System io.Writer
}

func (o Output) Write(ev protocol.Outbound) {
	w := o.Stdout
	switch ev.Stream {
	case protocol.StreamStderr:
		w = o.Stderr
	case protocol.StreamSystem:
		w = o.System
		if w == nil {
			w = o.Stderr
		}
	}
	if w != nil {
		_, _ = io.WriteString(w, ev.Data)
	}
}

// Pump writes events to out until the exit event or the end of the stream.
func Pump(ctx context.Context, c *Client, out Output) (Result, error) {
	for {
		select {
		case <-ctx.Done():
			_ = c.Stop()
			return Result{}, ctx.Err()
		case ev, ok := <-c.Events():
			if !ok {
				return Result{}, nil
			}
			if ev.IsExit() {
				return Result{Exit: ev, Exited: true}, nil
			}
			out.Write(ev)
		}
	}
}

// RunOnce submits source, copies stdin line by line, and waits for the outcome.
func RunOnce(ctx context.Context, c *Client, language, source string, stdin io.Reader, out Output) (Result, error) {
	if err := c.Start(language, source); err != nil {
		return Result{}, err
	}
	if stdin != nil {
		go copyInput(c, stdin)
	}
	res, err := Pump(ctx, c, out)
	if err != nil {
		return res, err
	}
	if !res.Exited {
		return res, fmt.Errorf("session ended without exit: %v", c.Err())
	}
	return res, nil
}

func copyInput(c *Client, stdin io.Reader) {
	reader := bufio.NewReader(stdin)
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			if sendErr := c.Send(line); sendErr != nil {
				return
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				_ = c.CloseInput()
			}
			return
		}
	}
}
