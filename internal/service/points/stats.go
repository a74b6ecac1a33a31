package points

import (
	"time"

	"github.com/oggyb/survey-exchange/internal/db"
)

type TypeStats struct {
	Count  int `json:"count"`
	Points int `json:"points"`
}

type Stats struct {
	Total     int                        `json:"total"`
	Earned    int                        `json:"earned"`
	Spent     int                        `json:"spent"`
	ThisMonth int                        `json:"thisMonth"`
	ByType    map[db.PointType]TypeStats `json:"byType"`
}

// CalculatePointsStats aggregates records. ThisMonth covers the calendar
// month of now (UTC); Spent is the absolute sum of negative entries.
func CalculatePointsStats(records []db.PointRecord, now time.Time) Stats {
	now = now.UTC()
	st := Stats{ByType: make(map[db.PointType]TypeStats)}

	for _, r := range records {
		st.Total += r.Points
		if r.Points > 0 {
			st.Earned += r.Points
		} else {
			st.Spent += -r.Points
		}

		at := r.CreatedAt.UTC()
		if at.Year() == now.Year() && at.Month() == now.Month() {
			st.ThisMonth += r.Points
		}

		ts := st.ByType[r.Type]
		ts.Count++
		ts.Points += r.Points
		st.ByType[r.Type] = ts
	}
	return st
}
