package services

import (
	"context"
	"errors"
	"time"

	domain "github.com/lumalingua/api/internal/domain"
	"github.com/lumalingua/api/internal/repositories"
)

// SystemServiceDeps bundles collaborators required to construct a system service.
type SystemServiceDeps struct {
	HealthRepository repositories.HealthRepository
	Clock            func() time.Time
}

type systemService struct {
	health repositories.HealthRepository
	now    func() time.Time
}

var _ SystemService = (*systemService)(nil)

// NewSystemService assembles the service backing the readiness probe.
func NewSystemService(deps SystemServiceDeps) (SystemService, error) {
	if deps.HealthRepository == nil {
		return nil, errors.New("system service: health repository is required")
	}
	svc := &systemService{health: deps.HealthRepository, now: time.Now}
	if deps.Clock != nil {
		svc.now = deps.Clock
	}
	return svc, nil
}

// HealthReport collects dependency probe results, normalising a report that
// a repository returned without status or timestamp.
func (s *systemService) HealthReport(ctx context.Context) (SystemHealthReport, error) {
	report, err := s.health.Collect(ctx)
	if err != nil {
		return SystemHealthReport{}, err
	}
	if report.GeneratedAt.IsZero() {
		report.GeneratedAt = s.now().UTC()
	}
	if report.Status == "" {
		report.Status = domain.HealthStatusOK
	}
	return report, nil
}
