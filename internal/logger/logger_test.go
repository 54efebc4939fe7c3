package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLevelTokens(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stdout)

	tests := []struct {
		name  string
		emit  func()
		token string
	}{
		{"info", func() { Infof("engine started") }, "level=INFO"},
		{"warning", func() { Warnf("daily loss limit reached") }, "level=WARNING"},
		{"error", func() { Errorf("broker unreachable") }, "level=ERROR"},
		{"signal", func() { Signalf("ENTER_LONG at %.2f", 101.5) }, "level=SIGNAL"},
		{"buy", func() { Tradef("BUY", "filled") }, "level=BUY"},
		{"sell", func() { Tradef("sell", "filled") }, "level=SELL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()
			tt.emit()
			if !strings.Contains(buf.String(), tt.token) {
				t.Fatalf("line %q missing %s", buf.String(), tt.token)
			}
			last := Tail(1)
			if len(last) != 1 || !strings.Contains(last[0], tt.token) {
				t.Fatalf("tail=%v, expected line with %s", last, tt.token)
			}
		})
	}
}

func TestRingKeepsLastLines(t *testing.T) {
	r := NewRing(3)
	for _, l := range []string{"a", "b", "c", "d"} {
		_, _ = r.Write([]byte(l + "\n"))
	}
	got := r.Last(10)
	want := []string{"b", "c", "d"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("Last(10)=%v, expected %v", got, want)
	}
	if got := r.Last(2); strings.Join(got, ",") != "c,d" {
		t.Fatalf("Last(2)=%v, expected [c d]", got)
	}
}

func TestRingJoinsPartialWrites(t *testing.T) {
	r := NewRing(4)
	_, _ = r.Write([]byte("hel"))
	if got := r.Last(5); len(got) != 0 {
		t.Fatalf("partial line surfaced early: %v", got)
	}
	_, _ = r.Write([]byte("lo\nwor"))
	_, _ = r.Write([]byte("ld\n"))
	got := r.Last(5)
	if len(got) != 2 || got[0] != "hello" || got[1] != "world" {
		t.Fatalf("Last=%v, expected [hello world]", got)
	}
}

func TestDailyFileRotates(t *testing.T) {
	dir := t.TempDir()
	d, err := OpenDailyFile(dir)
	if err != nil {
		t.Fatalf("OpenDailyFile: %v", err)
	}
	defer d.Close()

	day := time.Date(2026, 3, 2, 23, 59, 0, 0, time.Local)
	d.now = func() time.Time { return day }
	_, _ = d.Write([]byte("first\n"))
	day = day.Add(2 * time.Minute)
	_, _ = d.Write([]byte("second\n"))

	for file, want := range map[string]string{"bot_20260302.log": "first", "bot_20260303.log": "second"} {
		b, err := os.ReadFile(filepath.Join(dir, file))
		if err != nil {
			t.Fatalf("read %s: %v", file, err)
		}
		if !strings.Contains(string(b), want) {
			t.Fatalf("%s=%q, expected %q", file, b, want)
		}
	}
}
