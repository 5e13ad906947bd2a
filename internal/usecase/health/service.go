package health

import (
	"context"
	"time"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure. Answers still flow but
	// cannot be grounded on retrieved knowledge.
	Degraded Status = "degraded"
	// Unhealthy indicates the database is unreachable. Cache, chunks
	// and conversation memory all live there, so nothing works.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results. IndexBuiltAt is zero until
// the first successful index build.
type Report struct {
	Status       Status
	Checks       map[string]CheckResult
	IndexBuiltAt time.Time
}

// Service coordinates health checks.
type Service struct {
	db    DBPinger
	index IndexReader
}

// New creates a Service. index can be nil.
func New(db DBPinger, index IndexReader) *Service {
	return &Service{db: db, index: index}
}

// Check runs health checks against all components. An empty index
// counts as a failure: the service cannot ground answers without
// knowledge loaded. A failing database ping outranks everything else.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	if err := s.db.Ping(ctx); err != nil {
		checks["database"] = CheckError
	} else {
		checks["database"] = CheckOK
	}

	var builtAt time.Time
	if s.index != nil {
		builtAt = s.index.BuiltAt()
		if s.index.Size() == 0 {
			checks["index"] = CheckError
		} else {
			checks["index"] = CheckOK
		}
	}

	status := Healthy
	if checks["database"] == CheckError {
		status = Unhealthy
	} else {
		for _, v := range checks {
			if v == CheckError {
				status = Degraded
				break
			}
		}
	}

	return Report{Status: status, Checks: checks, IndexBuiltAt: builtAt}
}
