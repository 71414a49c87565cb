package nashealth

import (
	"errors"
	"testing"

	"github.com/mezzofs/mezzofs/pkg/fault"
)

func TestParseState(t *testing.T) {
	cases := []struct {
		in   string
		want State
	}{
		{"healthy", StateHealthy},
		{"HEALTHY", StateHealthy},
		{"  degraded ", StateDegraded},
		{"unhealthy", StateUnhealthy},
		{"bogus", StateUnhealthy},
		{"", StateUnhealthy},
	}
	for _, tc := range cases {
		if got := ParseState(tc.in); got != tc.want {
			t.Errorf("ParseState(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestStartsHealthy(t *testing.T) {
	c := New()
	if got := c.Get().State; got != StateHealthy {
		t.Errorf("initial state = %v, want healthy", got)
	}
	if err := c.Guard(); err != nil {
		t.Errorf("Guard on fresh cell = %v, want nil", err)
	}
}

func TestGuard(t *testing.T) {
	c := New()

	c.SetFromProbe(StateDegraded, errors.New("slow listing"))
	if err := c.Guard(); err != nil {
		t.Errorf("Guard while degraded = %v, want nil", err)
	}

	c.SetFromProbe(StateUnhealthy, errors.New("mount gone"))
	err := c.Guard()
	if !errors.Is(err, ErrNASUnavailable) {
		t.Fatalf("Guard while unhealthy = %v, want ErrNASUnavailable", err)
	}
	if fault.KindOf(err) != fault.KindUnavailable {
		t.Errorf("kind = %v, want KindUnavailable", fault.KindOf(err))
	}
}

func TestReportFailureIsOneWay(t *testing.T) {
	c := New()

	c.ReportFailure(errors.New("i/o error"))
	if got := c.Get().State; got != StateUnhealthy {
		t.Fatalf("state after ReportFailure = %v, want unhealthy", got)
	}

	// A second worker failure keeps it unhealthy.
	c.ReportFailure(errors.New("still broken"))
	if got := c.Get().State; got != StateUnhealthy {
		t.Errorf("state = %v, want unhealthy", got)
	}

	// Only the probe may recover the gate.
	c.SetFromProbe(StateHealthy, nil)
	if got := c.Get().State; got != StateHealthy {
		t.Errorf("state after probe recovery = %v, want healthy", got)
	}
}

func TestSnapshotRecordsLastError(t *testing.T) {
	c := New()
	c.SetFromProbe(StateUnhealthy, errors.New("stale handle"))

	snap := c.Get()
	if snap.LastError != "stale handle" {
		t.Errorf("LastError = %q, want %q", snap.LastError, "stale handle")
	}
	if snap.LastCheckedAt.IsZero() {
		t.Error("LastCheckedAt should be set after a probe write")
	}

	// A clean probe clears the error.
	c.SetFromProbe(StateHealthy, nil)
	if got := c.Get().LastError; got != "" {
		t.Errorf("LastError after clean probe = %q, want empty", got)
	}
}
