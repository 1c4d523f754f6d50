// Package health runs the preflight checks behind `dotmatrix check`.
//
// Probes only look: none of them creates a directory or writes a
// substrate. Each probe gets its own deadline, and a probe that panics is
// reported as unhealthy instead of taking the command down.
package health

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Status is the verdict for one probe or for a whole Report.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// DefaultTimeout bounds a probe registered without its own timeout.
const DefaultTimeout = 5 * time.Second

// CheckResult is what a probe found.
type CheckResult struct {
	Status   Status         `json:"status"`
	Message  string         `json:"message,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
	Error    string         `json:"error,omitempty"`
	Started  time.Time      `json:"started"`
	Duration time.Duration  `json:"duration_ns"`
}

// Check probes one dependency. It should return promptly once ctx is done.
type Check func(ctx context.Context) CheckResult

// Component is a registered probe. An unhealthy critical component makes
// the Report unhealthy; any other failure only degrades it.
type Component struct {
	Name     string
	Critical bool
	Timeout  time.Duration
	Check    Check
}

// Checker is a set of components probed together.
type Checker struct {
	mu         sync.Mutex
	components []*Component
}

func NewChecker() *Checker {
	return &Checker{}
}

// Register adds comp, replacing any component of the same name.
func (c *Checker) Register(comp *Component) {
	if comp.Timeout <= 0 {
		comp.Timeout = DefaultTimeout
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, existing := range c.components {
		if existing.Name == comp.Name {
			c.components[i] = comp
			return
		}
	}
	c.components = append(c.components, comp)
}

// RegisterFunc registers check under name with the default timeout.
func (c *Checker) RegisterFunc(name string, critical bool, check Check) {
	c.Register(&Component{Name: name, Critical: critical, Check: check})
}

// Names lists components in registration order.
func (c *Checker) Names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, len(c.components))
	for i, comp := range c.components {
		names[i] = comp.Name
	}
	return names
}

// Report is one run over every component.
type Report struct {
	Status     Status                 `json:"status"`
	Components map[string]CheckResult `json:"components"`
	Timestamp  time.Time              `json:"timestamp"`
}

// Run probes every component concurrently and waits for all of them.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.Lock()
	components := append([]*Component(nil), c.components...)
	c.mu.Unlock()

	results := make([]CheckResult, len(components))
	var wg sync.WaitGroup
	for i, comp := range components {
		i, comp := i, comp
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = probe(ctx, comp)
		}()
	}
	wg.Wait()

	report := Report{
		Status:     StatusHealthy,
		Components: make(map[string]CheckResult, len(components)),
		Timestamp:  time.Now(),
	}
	for i, comp := range components {
		r := results[i]
		report.Components[comp.Name] = r
		switch {
		case r.Status == StatusHealthy:
		case r.Status == StatusUnhealthy && comp.Critical:
			report.Status = StatusUnhealthy
		case report.Status == StatusHealthy:
			report.Status = StatusDegraded
		}
	}
	return report
}

// probe runs comp.Check under its deadline. The result channel is
// buffered so a check that outlives its deadline can still deliver and
// exit.
func probe(ctx context.Context, comp *Component) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, comp.Timeout)
	defer cancel()

	started := time.Now()
	out := make(chan CheckResult, 1)
	go func() {
		defer func() {
			if v := recover(); v != nil {
				out <- CheckResult{Status: StatusUnhealthy, Message: "check panicked", Error: fmt.Sprint(v)}
			}
		}()
		out <- comp.Check(ctx)
	}()

	var r CheckResult
	select {
	case r = <-out:
	case <-ctx.Done():
		r = CheckResult{Status: StatusUnhealthy, Message: "check timed out", Error: ctx.Err().Error()}
	}
	r.Started = started
	r.Duration = time.Since(started)
	return r
}

// ExecutorCheck turns an availability probe such as
// Bridge.CheckAvailable into a Check.
func ExecutorCheck(name string, available func(ctx context.Context) bool) Check {
	return func(ctx context.Context) CheckResult {
		details := map[string]any{"executor": name}
		if !available(ctx) {
			return CheckResult{Status: StatusUnhealthy, Message: "executor not available", Details: details}
		}
		return CheckResult{Status: StatusHealthy, Message: "executor available", Details: details}
	}
}

// DatabaseCheck reports the journal unhealthy when ping fails.
func DatabaseCheck(ping func(ctx context.Context) error) Check {
	return func(ctx context.Context) CheckResult {
		if err := ping(ctx); err != nil {
			return CheckResult{Status: StatusUnhealthy, Message: "journal unreachable", Error: err.Error()}
		}
		return CheckResult{Status: StatusHealthy, Message: "journal ok"}
	}
}

// DirectoryCheck looks at the output directory ("" means the working
// directory). Missing is only degraded: strikes create parents on demand.
func DirectoryCheck(dir string) Check {
	if dir == "" {
		dir = "."
	}
	return func(context.Context) CheckResult {
		shown := dir
		if abs, err := filepath.Abs(dir); err == nil {
			shown = abs
		}
		details := map[string]any{"path": shown}

		info, err := os.Stat(dir)
		switch {
		case os.IsNotExist(err):
			return CheckResult{Status: StatusDegraded, Message: "directory will be created on first strike", Details: details}
		case err != nil:
			return CheckResult{Status: StatusUnhealthy, Message: "directory not accessible", Details: details, Error: err.Error()}
		case !info.IsDir():
			return CheckResult{Status: StatusUnhealthy, Message: "not a directory", Details: details}
		}
		return CheckResult{Status: StatusHealthy, Message: "directory ok", Details: details}
	}
}
