package metrics

import "testing"

func TestCounterIncAndAdd(t *testing.T) {
	var c Counter
	c.Inc()
	c.Add(4)
	if got := c.Value(); got != 5 {
		t.Fatalf("Value() = %d, want 5", got)
	}
}

func TestGaugeSet(t *testing.T) {
	var g Gauge
	g.Set(7)
	g.Set(3)
	if got := g.Value(); got != 3 {
		t.Fatalf("Value() = %d, want 3", got)
	}
}

func TestSnapReflectsLiveCounters(t *testing.T) {
	before := Snap().FormatListsApplied
	Clipboard.FormatListsApplied.Inc()
	after := Snap().FormatListsApplied
	if after != before+1 {
		t.Fatalf("FormatListsApplied = %d, want %d", after, before+1)
	}
}

func TestUptimeIsPositive(t *testing.T) {
	if Uptime() < 0 {
		t.Fatal("Uptime() returned negative duration")
	}
}
