package application

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/volatiletech/null/v8"
)

func paidApp(status Status, amount int, submittedAt time.Time) Application {
	return Application{
		Status:      status,
		Payment:     &Payment{Method: PaymentPaypal, Amount: amount, PaidAt: submittedAt},
		SubmittedAt: null.TimeFrom(submittedAt),
	}
}

func TestCountByStatus(t *testing.T) {
	now := time.Now().UTC()
	apps := []Application{
		paidApp(StatusPending, 100, now),
		paidApp(StatusPending, 115, now),
		paidApp(StatusApproved, 130, now),
		paidApp(StatusRejected, 100, now),
	}

	stats := CountByStatus(apps)
	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, map[Status]int{
		StatusPending:  2,
		StatusReview:   0,
		StatusApproved: 1,
		StatusRejected: 1,
	}, stats.Counts)
}

func TestCountByStatus_skipsDrafts(t *testing.T) {
	now := time.Now().UTC()
	apps := []Application{
		{Status: StatusDraft},
		paidApp(StatusPending, 100, now),
	}
	stats := CountByStatus(apps)
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.Counts[StatusPending])
}

func TestSumRevenue(t *testing.T) {
	now := time.Now().UTC()
	apps := []Application{
		paidApp(StatusPending, 100, now),
		paidApp(StatusApproved, 130, now),
		{Status: StatusDraft}, // no payment: contributes 0
	}
	assert.Equal(t, 230, SumRevenue(apps))
	assert.Zero(t, SumRevenue(nil))
}

func TestBucketByMonth(t *testing.T) {
	now := time.Date(2024, time.March, 15, 12, 0, 0, 0, time.UTC)

	apps := []Application{
		paidApp(StatusPending, 100, now.AddDate(0, 0, -1)),                           // March 2024
		paidApp(StatusApproved, 130, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)),    // March boundary
		paidApp(StatusPending, 115, time.Date(2023, 4, 30, 23, 59, 59, 0, time.UTC)), // oldest month
		paidApp(StatusPending, 100, time.Date(2023, 3, 31, 0, 0, 0, 0, time.UTC)),    // too old, dropped
		{Status: StatusDraft}, // never submitted, dropped
	}

	buckets := BucketByMonth(apps, now)
	assert.Len(t, buckets, 12)

	first, last := buckets[0], buckets[11]
	assert.Equal(t, 2023, first.Year)
	assert.Equal(t, time.April, first.Month)
	assert.Equal(t, 1, first.Count)
	assert.Equal(t, 115, first.Revenue)

	assert.Equal(t, 2024, last.Year)
	assert.Equal(t, time.March, last.Month)
	assert.Equal(t, 2, last.Count)
	assert.Equal(t, 230, last.Revenue)

	var total int
	for _, b := range buckets {
		total += b.Count
	}
	assert.Equal(t, 3, total)
}
