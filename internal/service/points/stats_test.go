package points_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/oggyb/survey-exchange/internal/db"
	"github.com/oggyb/survey-exchange/internal/service/points"
)

func TestCalculatePointsStats(t *testing.T) {
	now := time.Date(2025, 3, 20, 0, 0, 0, 0, time.UTC)
	records := []db.PointRecord{
		{Points: 10, Type: db.PointsSurveyComplete, CreatedAt: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)},
		{Points: 2, Type: db.PointsMutualBonus, CreatedAt: time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)},
		{Points: -5, Type: db.PointsPenalty, CreatedAt: time.Date(2025, 2, 28, 23, 59, 0, 0, time.UTC)},
		{Points: 10, Type: db.PointsSurveyComplete, CreatedAt: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)},
	}

	st := points.CalculatePointsStats(records, now)

	assert.Equal(t, 17, st.Total)
	assert.Equal(t, 22, st.Earned)
	assert.Equal(t, 5, st.Spent)
	assert.Equal(t, 12, st.ThisMonth, "same month of a previous year does not count")
	assert.Equal(t, points.TypeStats{Count: 2, Points: 20}, st.ByType[db.PointsSurveyComplete])
	assert.Equal(t, points.TypeStats{Count: 1, Points: -5}, st.ByType[db.PointsPenalty])
}

func TestCalculatePointsStats_Empty(t *testing.T) {
	st := points.CalculatePointsStats(nil, time.Now())
	assert.Zero(t, st.Total)
	assert.Empty(t, st.ByType)
}
