package repository

import (
	"context"
	"testing"
	"time"

	"admissions-go/internal/models"
	"admissions-go/internal/testdb"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportRepository_Aggregates(t *testing.T) {
	db := testdb.Open(t)
	attendees := NewAttendeeRepository(db)
	reports := NewReportRepository(db)
	ctx := context.Background()

	seed := []*models.Attendee{
		{Email: "p1@example.com", Status: models.StatusPassed, TestType: models.TestTypeScholarship},
		{Email: "p2@example.com", Status: models.StatusPassed, TestType: models.TestTypeScholarship},
		{Email: "d1@example.com", Status: models.StatusDisqualified, TestType: models.TestTypeScholarship},
		{Email: "x1@example.com", Status: models.StatusFailed, TestType: models.TestTypeAptitude},
	}
	for _, a := range seed {
		_, err := attendees.Upsert(ctx, a, scoreColumns, CouponKeep)
		require.NoError(t, err)
	}
	p1, err := attendees.FindByEmail(ctx, "p1@example.com")
	require.NoError(t, err)
	require.NoError(t, attendees.IncrementCounter(ctx, p1.ID, CounterEmail))
	require.NoError(t, attendees.IncrementCounter(ctx, p1.ID, CounterWhatsApp))

	counts, err := reports.StatusCounts(ctx, string(models.TestTypeScholarship))
	require.NoError(t, err)
	assert.ElementsMatch(t, []StatusCount{
		{Status: "disqualified", Total: 1},
		{Status: "passed", Total: 2},
	}, counts)

	totals, err := reports.NurtureTotals(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), totals.Emails)
	assert.Equal(t, int64(1), totals.WhatsApps)
	assert.Equal(t, int64(0), totals.VoiceCalls)

	daily, err := reports.DailySubmissions(ctx, "", time.Now().Add(-48*time.Hour))
	require.NoError(t, err)
	var total int64
	for _, d := range daily {
		total += d.Total
	}
	assert.Equal(t, int64(4), total)
}
