package protocol

import (
	"strings"
	"testing"

	"liverun/internal/runner/result"
	appErr "liverun/pkg/errors"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		want  Inbound
	}{
		{
			name:  "start",
			frame: `{"type":"start","language":"python","source":"print(1)"}`,
			want:  Inbound{Type: TypeStart, Language: "python", Source: "print(1)"},
		},
		{
			name:  "start with legacy field names",
			frame: `{"type":"start","lang":"c","code":"int main(){}"}`,
			want:  Inbound{Type: TypeStart, Language: "c", Source: "int main(){}"},
		},
		{
			name:  "empty source is allowed",
			frame: `{"type":"start","language":"python","source":""}`,
			want:  Inbound{Type: TypeStart, Language: "python"},
		},
		{
			name:  "missing language is left to the registry",
			frame: `{"type":"start","source":"x"}`,
			want:  Inbound{Type: TypeStart, Source: "x"},
		},
		{
			name:  "stdin",
			frame: `{"type":"stdin","data":"42\n"}`,
			want:  Inbound{Type: TypeStdin, Data: "42\n"},
		},
		{
			name:  "type is case insensitive",
			frame: `{"type":"STOP"}`,
			want:  Inbound{Type: TypeStop},
		},
		{
			name:  "eof",
			frame: `{"type":"eof"}`,
			want:  Inbound{Type: TypeEOF},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.frame))
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if got != tt.want {
				t.Fatalf("Decode() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDecodeRejects(t *testing.T) {
	frames := []string{
		`not json`,
		`{}`,
		`{"type":"resize"}`,
	}
	for _, frame := range frames {
		if _, err := Decode([]byte(frame)); !appErr.Is(err, appErr.ProtocolViolation) {
			t.Errorf("Decode(%s) error = %v, want ProtocolViolation", frame, err)
		}
	}
}

func TestEncodeExit(t *testing.T) {
	data, err := Encode(Exit(result.ExitStatus{Code: 0}))
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if string(data) != `{"type":"exit","code":0}` {
		t.Fatalf("exit frame = %s", data)
	}

	data, err = Encode(Exit(result.ExitStatus{Code: 137, Signal: "SIGKILL", Reason: result.ReasonTimeout}))
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if string(data) != `{"type":"exit","code":137,"signal":"SIGKILL","reason":"timeout"}` {
		t.Fatalf("exit frame = %s", data)
	}
}

func TestEncodeOutput(t *testing.T) {
	data, err := Encode(Output(StreamStderr, []byte("boom\n")))
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if string(data) != `{"type":"output","data":"boom\n","stream":"stderr"}` {
		t.Fatalf("output frame = %s", data)
	}
}

func TestDiagnosticEndsWithNewline(t *testing.T) {
	d := Diagnostic("Unsupported language: cobol")
	if d.Stream != StreamSystem || !strings.HasSuffix(d.Data, "\n") {
		t.Fatalf("unexpected diagnostic: %+v", d)
	}
}

func TestClientFramesRoundTrip(t *testing.T) {
	frame, err := Start("javascript", "console.log(1)")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	msg, err := Decode(frame)
	if err != nil || msg.Language != "javascript" || msg.Source != "console.log(1)" {
		t.Fatalf("Decode(Start()) = %+v, %v", msg, err)
	}
	for _, frame := range [][]byte{EOF(), Stop()} {
		if _, err := Decode(frame); err != nil {
			t.Fatalf("Decode(%s) error = %v", frame, err)
		}
	}
	out, err := DecodeOutbound([]byte(`{"type":"exit","code":3}`))
	if err != nil {
		t.Fatalf("DecodeOutbound() error = %v", err)
	}
	if code, ok := out.ExitCode(); !ok || code != 3 || !out.IsExit() {
		t.Fatalf("unexpected exit: %+v", out)
	}
}
