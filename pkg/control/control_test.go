package control

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"record", Record, false},
		{"STREAM", Stream, false},
		{" Stream ", Stream, false},
		{"", Record, true},
		{"pause", Record, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidMode) {
					t.Errorf("ParseMode(%q) error = %v, want ErrInvalidMode", tt.in, err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("ParseMode(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
			}
		})
	}
}

func TestSetModeRejectsInvalid(t *testing.T) {
	c := New(Stream)
	if err := c.SetModeString("sideways"); !errors.Is(err, ErrInvalidMode) {
		t.Fatalf("error = %v", err)
	}
	if err := c.SetMode(Mode(7)); !errors.Is(err, ErrInvalidMode) {
		t.Fatalf("error = %v", err)
	}
	if c.Mode() != Stream {
		t.Errorf("mode changed to %v after invalid input", c.Mode())
	}
}

func TestModeChangeListeners(t *testing.T) {
	c := New(Record)
	var got []Mode
	c.OnModeChange(func(m Mode) { got = append(got, m) })

	_ = c.SetMode(Record)
	_ = c.SetMode(Stream)
	_ = c.SetModeString("stream")
	_ = c.SetMode(Record)

	if len(got) != 2 || got[0] != Stream || got[1] != Record {
		t.Errorf("listener calls = %v, want [stream record]", got)
	}
}

func TestRequestKill(t *testing.T) {
	c := New(Record)
	if c.Killed() {
		t.Fatal("new controller already killed")
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.RequestKill()
		}()
	}
	wg.Wait()

	if !c.Killed() {
		t.Error("Killed() = false after RequestKill")
	}
	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Error("Done channel not closed")
	}
}
