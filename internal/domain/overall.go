package domain

// OverallStatus is the aggregate status label derived from the current set
// of services. It is computed on demand and never persisted.
type OverallStatus string

// Overall statuses.
const (
	OverallAllOperational OverallStatus = "all_operational"
	OverallMajorOutage    OverallStatus = "major_outage"
	OverallPartialIssues  OverallStatus = "partial_issues"
)

// ComputeOverallStatus derives the overall status from current service
// statuses: all operational wins, any major outage overrides, and every
// other mix (degraded, partial outage, maintenance) collapses to partial
// issues.
func ComputeOverallStatus(services []Service) OverallStatus {
	allOperational := true
	for _, svc := range services {
		switch svc.Status {
		case ServiceStatusMajorOutage:
			return OverallMajorOutage
		case ServiceStatusOperational:
		default:
			allOperational = false
		}
	}
	if allOperational {
		return OverallAllOperational
	}
	return OverallPartialIssues
}
