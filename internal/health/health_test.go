package health

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func healthy(context.Context) CheckResult { return CheckResult{Status: StatusHealthy} }

func TestCheckerOverallStatus(t *testing.T) {
	tests := []struct {
		name     string
		critical Status
		optional Status
		expected Status
	}{
		{"all healthy", StatusHealthy, StatusHealthy, StatusHealthy},
		{"optional unhealthy", StatusHealthy, StatusUnhealthy, StatusDegraded},
		{"critical degraded", StatusDegraded, StatusHealthy, StatusDegraded},
		{"critical unhealthy", StatusUnhealthy, StatusHealthy, StatusUnhealthy},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			c := NewChecker()
			critical, optional := test.critical, test.optional
			c.RegisterFunc("kernel", true, func(context.Context) CheckResult { return CheckResult{Status: critical} })
			c.RegisterFunc("journal", false, func(context.Context) CheckResult { return CheckResult{Status: optional} })

			report := c.Run(context.Background())
			if report.Status != test.expected {
				t.Errorf("expected %s, got %s", test.expected, report.Status)
			}
			if len(report.Components) != 2 {
				t.Errorf("expected 2 component results, got %d", len(report.Components))
			}
		})
	}
}

func TestCheckerNamesInRegistrationOrder(t *testing.T) {
	c := NewChecker()
	c.RegisterFunc("executor", true, healthy)
	c.RegisterFunc("output_dir", false, healthy)
	c.RegisterFunc("journal", true, healthy)
	c.RegisterFunc("executor", true, func(context.Context) CheckResult { return CheckResult{Status: StatusUnhealthy} })

	names := c.Names()
	want := []string{"executor", "output_dir", "journal"}
	if len(names) != len(want) {
		t.Fatalf("expected %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names[%d] = %s, expected %s", i, names[i], want[i])
		}
	}

	// Re-registering replaced the executor probe.
	if report := c.Run(context.Background()); report.Status != StatusUnhealthy {
		t.Errorf("expected replaced probe to make the report unhealthy, got %s", report.Status)
	}
}

func TestCheckerTimeoutAndPanic(t *testing.T) {
	c := NewChecker()
	c.Register(&Component{
		Name:     "slow",
		Critical: true,
		Timeout:  20 * time.Millisecond,
		Check: func(ctx context.Context) CheckResult {
			time.Sleep(time.Second)
			return CheckResult{Status: StatusHealthy}
		},
	})
	c.RegisterFunc("broken", false, func(context.Context) CheckResult { panic("boom") })

	report := c.Run(context.Background())
	if r := report.Components["slow"]; r.Status != StatusUnhealthy || r.Message != "check timed out" {
		t.Errorf("unexpected slow result %+v", r)
	}
	if r := report.Components["broken"]; r.Status != StatusUnhealthy || r.Error != "boom" {
		t.Errorf("unexpected panic result %+v", r)
	}
	if report.Status != StatusUnhealthy {
		t.Errorf("critical timeout should be unhealthy, got %s", report.Status)
	}
	if r := report.Components["slow"]; r.Duration <= 0 || r.Started.IsZero() {
		t.Errorf("timing not recorded: %+v", r)
	}
}

func TestCheckerCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewChecker()
	c.RegisterFunc("journal", false, func(ctx context.Context) CheckResult {
		<-ctx.Done()
		return CheckResult{Status: StatusUnhealthy, Error: ctx.Err().Error()}
	})
	report := c.Run(ctx)
	if report.Status != StatusDegraded {
		t.Errorf("optional failure should degrade, got %s", report.Status)
	}
}

func TestExecutorCheck(t *testing.T) {
	up := ExecutorCheck("kernel", func(context.Context) bool { return true })(context.Background())
	if up.Status != StatusHealthy || up.Details["executor"] != "kernel" {
		t.Errorf("unexpected result %+v", up)
	}
	down := ExecutorCheck("gforth", func(context.Context) bool { return false })(context.Background())
	if down.Status != StatusUnhealthy {
		t.Errorf("expected unhealthy, got %s", down.Status)
	}
}

func TestDatabaseCheck(t *testing.T) {
	ok := DatabaseCheck(func(context.Context) error { return nil })(context.Background())
	if ok.Status != StatusHealthy {
		t.Errorf("expected healthy, got %s", ok.Status)
	}
	bad := DatabaseCheck(func(context.Context) error { return errors.New("locked") })(context.Background())
	if bad.Status != StatusUnhealthy || bad.Error != "locked" {
		t.Errorf("unexpected result %+v", bad)
	}
}

func TestDirectoryCheck(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "file")
	if err := os.WriteFile(file, nil, 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		path     string
		expected Status
	}{
		{dir, StatusHealthy},
		{filepath.Join(dir, "missing"), StatusDegraded},
		{file, StatusUnhealthy},
	}
	for _, test := range tests {
		if got := DirectoryCheck(test.path)(context.Background()); got.Status != test.expected {
			t.Errorf("DirectoryCheck(%s) = %s, expected %s", test.path, got.Status, test.expected)
		}
	}
}
