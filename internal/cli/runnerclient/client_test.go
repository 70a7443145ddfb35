package runnerclient

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"liverun/internal/runner/protocol"
	"liverun/internal/runner/result"

	"github.com/gorilla/websocket"
)

// newFakeServer upper-cases stdin, exits 5 on eof and closes on stop.
func newFakeServer(t *testing.T) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		send := func(ev protocol.Outbound) {
			frame, _ := protocol.Encode(ev)
			_ = conn.WriteMessage(websocket.TextMessage, frame)
		}
		bye := func(text string) {
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, text)
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		}
		for {
			_, frame, err := conn.ReadMessage()
			if err != nil {
				return
			}
			msg, err := protocol.Decode(frame)
			if err != nil {
				continue
			}
			switch msg.Type {
			case protocol.TypeStart:
				if msg.Language != "upper" {
					send(protocol.Diagnostic("Unsupported language: " + msg.Language))
					continue
				}
				send(protocol.Output(protocol.StreamStdout, []byte("ready\n")))
				send(protocol.Output(protocol.StreamStderr, []byte("warming up\n")))
			case protocol.TypeStdin:
				send(protocol.Output(protocol.StreamStdout, []byte(strings.ToUpper(msg.Data))))
			case protocol.TypeEOF:
				send(protocol.Exit(result.ExitStatus{Code: 5}))
				bye("Exited")
				return
			case protocol.TypeStop:
				bye("Terminated")
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestRunOnce(t *testing.T) {
	c := dial(t, newFakeServer(t))
	var stdout, stderr bytes.Buffer
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := RunOnce(ctx, c, "upper", "ignored", strings.NewReader("a\nb"), Output{Stdout: &stdout, Stderr: &stderr})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !res.Exited || res.Code() != 5 {
		t.Fatalf("result = %+v", res)
	}
	if stdout.String() != "ready\nA\nB" {
		t.Fatalf("stdout = %q", stdout.String())
	}
	if stderr.String() != "warming up\n" {
		t.Fatalf("stderr = %q", stderr.String())
	}
}

func TestStopEndsWithoutExit(t *testing.T) {
	c := dial(t, newFakeServer(t))
	if err := c.Start("upper", ""); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := c.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := Pump(ctx, c, Output{})
	if err != nil {
		t.Fatalf("pump: %v", err)
	}
	if res.Exited || res.Code() != -1 {
		t.Fatalf("result = %+v", res)
	}
	var closeErr *websocket.CloseError
	if !errors.As(c.Err(), &closeErr) || closeErr.Text != "Terminated" {
		t.Fatalf("close err = %v", c.Err())
	}
}

func TestDiagnosticsGoToSystemWriter(t *testing.T) {
	c := dial(t, newFakeServer(t))
	if err := c.Start("cobol", ""); err != nil {
		t.Fatalf("start: %v", err)
	}
	select {
	case ev := <-c.Events():
		var system, stderr bytes.Buffer
		Output{Stderr: &stderr, System: &system}.Write(ev)
		if system.String() != "Unsupported language: cobol\n" || stderr.Len() != 0 {
			t.Fatalf("system = %q stderr = %q", system.String(), stderr.String())
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no diagnostic received")
	}
}

func TestPumpHonorsContext(t *testing.T) {
	c := dial(t, newFakeServer(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Pump(ctx, c, Output{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("pump error = %v", err)
	}
}

func TestDialFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	_, err := Dial(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("dial error = %v", err)
	}
}

func TestCloseReleasesUnreadEvents(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		frame, _ := protocol.Encode(protocol.Output(protocol.StreamStdout, []byte("spam\n")))
		for i := 0; i < 200; i++ {
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		}
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	c := dial(t, "ws"+strings.TrimPrefix(srv.URL, "http"))
	deadline := time.Now().Add(5 * time.Second)
	for len(c.Events()) < cap(c.Events()) {
		if time.Now().After(deadline) {
			t.Fatal("event buffer never filled")
		}
		time.Sleep(5 * time.Millisecond)
	}

	_ = c.Close()
	for c.Err() == nil {
		if time.Now().After(deadline) {
			t.Fatal("reader still blocked on an unread event after Close")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
