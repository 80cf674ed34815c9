// Package health aggregates dependency health checks for liveness endpoints.
package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"fnkit/handler"
)

// Status is the outcome of a health check.
type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// Report is the result of one health check.
type Report struct {
	Name     string         `json:"name"`
	Status   Status         `json:"status"`
	Message  string         `json:"message,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
	Duration time.Duration  `json:"duration_ns"`
}

// OK reports a healthy dependency.
func OK(name string) Report {
	return Report{Name: name, Status: StatusOK}
}

// Failed reports an unhealthy dependency.
func Failed(name string, err error) Report {
	r := Report{Name: name, Status: StatusError}
	if err != nil {
		r.Message = err.Error()
	}
	return r
}

// Checker checks the health of one dependency.
type Checker interface {
	CheckHealth(ctx context.Context) Report
}

// CheckerFunc adapts a function to the Checker interface.
type CheckerFunc func(ctx context.Context) Report

// CheckHealth calls f(ctx).
func (f CheckerFunc) CheckHealth(ctx context.Context) Report {
	return f(ctx)
}

// Ping wraps an error-returning probe as a named Checker.
func Ping(name string, probe func(ctx context.Context) error) Checker {
	return CheckerFunc(func(ctx context.Context) Report {
		if err := probe(ctx); err != nil {
			return Failed(name, err)
		}
		return OK(name)
	})
}

// Summary is the aggregate of several reports.
type Summary struct {
	Status    Status    `json:"status"`
	Checks    []Report  `json:"checks"`
	Timestamp time.Time `json:"timestamp"`
}

// Healthy reports whether every check passed.
func (s Summary) Healthy() bool {
	return s.Status == StatusOK
}

// Check runs every checker concurrently and aggregates the reports in the
// order the checkers were given. The summary is in error if any check is.
func Check(ctx context.Context, checkers ...Checker) Summary {
	reports := make([]Report, len(checkers))

	var wg sync.WaitGroup
	for i, checker := range checkers {
		wg.Add(1)
		go func(i int, checker Checker) {
			defer wg.Done()
			start := time.Now()
			report := checker.CheckHealth(ctx)
			if report.Duration == 0 {
				report.Duration = time.Since(start)
			}
			if report.Status == "" {
				report.Status = StatusOK
			}
			reports[i] = report
		}(i, checker)
	}
	wg.Wait()

	summary := Summary{Status: StatusOK, Checks: reports, Timestamp: time.Now().UTC()}
	for _, r := range reports {
		if r.Status != StatusOK {
			summary.Status = StatusError
			break
		}
	}
	return summary
}

// Handler returns a terminal handler answering 200 when every checker is
// healthy and 503 otherwise. The body is the Summary.
func Handler(checkers ...Checker) handler.HandlerFunc {
	return func(ctx context.Context, inv *handler.Invocation) (handler.Response, error) {
		summary := Check(ctx, checkers...)
		status := http.StatusOK
		if !summary.Healthy() {
			status = http.StatusServiceUnavailable
		}
		return handler.JSON(status, summary)
	}
}
