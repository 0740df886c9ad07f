package application

import (
	"context"
	"time"
)

type (
	// StatusStats is the server-side replacement for client-side status
	// scanning: every submitted status appears, zeros included.
	StatusStats struct {
		Total  int            `json:"total"`
		Counts map[Status]int `json:"counts"`
	}

	// MonthBucket aggregates submissions for one calendar month (UTC).
	MonthBucket struct {
		Year    int        `json:"year"`
		Month   time.Month `json:"month"`
		Count   int        `json:"count"`
		Revenue int        `json:"revenue"`
	}

	RevenueStats struct {
		Total   int           `json:"total"`
		Monthly []MonthBucket `json:"monthly"`
	}
)

// CountByStatus computes the status-count map over the given applications.
// Drafts are skipped; all submitted statuses are zero-filled.
func CountByStatus(apps []Application) StatusStats {
	counts := make(map[Status]int, len(SubmittedStatuses))
	for _, s := range SubmittedStatuses {
		counts[s] = 0
	}
	var total int
	for i := range apps {
		if _, ok := counts[apps[i].Status]; !ok {
			continue
		}
		counts[apps[i].Status]++
		total++
	}
	return StatusStats{Total: total, Counts: counts}
}

// SumRevenue totals fees over paid applications; an application without a
// recorded payment contributes 0.
func SumRevenue(apps []Application) int {
	var total int
	for i := range apps {
		if apps[i].Payment == nil {
			continue
		}
		total += apps[i].Payment.Amount
	}
	return total
}

// BucketByMonth buckets paid applications into the trailing 12 months ending
// at now, oldest first. Month boundaries are computed in UTC.
func BucketByMonth(apps []Application, now time.Time) []MonthBucket {
	now = now.UTC()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -11, 0)

	buckets := make([]MonthBucket, 12)
	index := make(map[[2]int]int, 12)
	for i := 0; i < 12; i++ {
		m := start.AddDate(0, i, 0)
		buckets[i] = MonthBucket{Year: m.Year(), Month: m.Month()}
		index[[2]int{m.Year(), int(m.Month())}] = i
	}

	for i := range apps {
		if !apps[i].SubmittedAt.Valid {
			continue
		}
		at := apps[i].SubmittedAt.Time.UTC()
		if at.Before(start) || at.After(now) {
			continue
		}
		bi, ok := index[[2]int{at.Year(), int(at.Month())}]
		if !ok {
			continue
		}
		buckets[bi].Count++
		if apps[i].Payment != nil {
			buckets[bi].Revenue += apps[i].Payment.Amount
		}
	}
	return buckets
}

// StatusStats serves the staff dashboard; filter may scope to one university.
func (svc *Service) StatusStats(ctx context.Context, filter QueryFilter) (StatusStats, error) {
	apps, err := svc.lookupStats(ctx, filter)
	if err != nil {
		return StatusStats{}, err
	}
	return CountByStatus(apps), nil
}

// RevenueStats serves the revenue dashboard: grand total plus trailing-12-month buckets.
func (svc *Service) RevenueStats(ctx context.Context, filter QueryFilter) (RevenueStats, error) {
	apps, err := svc.lookupStats(ctx, filter)
	if err != nil {
		return RevenueStats{}, err
	}
	return RevenueStats{
		Total:   SumRevenue(apps),
		Monthly: BucketByMonth(apps, NowFunc()),
	}, nil
}

func (svc *Service) lookupStats(ctx context.Context, filter QueryFilter) ([]Application, error) {
	filter.Clean()
	if filter.IsEmpty() {
		return svc.repo.QueryAllApplications(ctx)
	}
	return svc.repo.FilterApplications(ctx, filter)
}
