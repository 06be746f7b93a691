package sensor

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestArmCancelledWhileSettling(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	w, err := Arm(ctx, Config{Chip: "gpiochip0", Pin: 17, Settle: time.Hour}, func(int) {})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Arm error = %v, want context.Canceled", err)
	}
	if w != nil {
		t.Error("watcher returned despite cancellation")
	}
	if time.Since(start) > time.Second {
		t.Error("Arm waited for the full settle delay")
	}
}
