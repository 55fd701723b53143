package application

import (
	"testing"
	"time"

	"pricecheck-service/internal/domain"

	"github.com/stretchr/testify/require"
)

func TestCalculateHorizonDateRange(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name  string
		post  string
		value string
		typ   string
		start string
		end   string
	}{
		{"end of year typed", "2025-03-15", "end of year", "end_of_year", "2025-12-01", "2025-12-31"},
		{"end of year turkish", "2025-03-15", "yıl sonu", "", "2025-12-01", "2025-12-31"},
		{"end of year explicit year", "2025-03-15", "2026 sonu", "custom", "2026-12-01", "2026-12-31"},
		{"relative months typed", "2025-01-10", "3 months", "month", "2025-01-10", "2025-04-10"},
		{"relative months turkish", "2025-01-10", "3 ay", "", "2025-01-10", "2025-04-10"},
		{"month range upper bound", "2025-01-10", "6-12 ay", "", "2025-01-10", "2026-01-10"},
		{"month clamps to month end", "2025-01-31", "1 month", "month", "2025-01-31", "2025-02-28"},
		{"named month", "2025-03-15", "June", "month", "2025-03-15", "2025-06-30"},
		{"named month turkish inflected", "2025-03-15", "hazirana kadar", "", "2025-03-15", "2025-06-30"},
		{"named month rolls over", "2025-08-01", "march", "month", "2025-08-01", "2026-03-31"},
		{"named month explicit year", "2025-03-15", "aralık 2026", "", "2025-03-15", "2026-12-31"},
		{"explicit quarter", "2025-01-10", "Q2 2025", "quarter", "2025-04-01", "2025-06-30"},
		{"explicit quarter turkish", "2025-01-10", "3. çeyrek", "", "2025-07-01", "2025-09-30"},
		{"explicit quarter rolls over", "2025-08-01", "Q1", "quarter", "2026-01-01", "2026-03-31"},
		{"bare quarter", "2025-01-10", "next quarter", "quarter", "2025-01-10", "2025-04-10"},
		{"counted quarters", "2025-01-10", "2 çeyrek", "", "2025-01-10", "2025-07-10"},
		{"iso date", "2025-01-10", "2025-05-20", "exact_date", "2025-01-10", "2025-05-20"},
		{"dotted date", "2025-01-10", "20.05.2025", "", "2025-01-10", "2025-05-20"},
		{"named date", "2025-01-10", "May 20, 2025", "", "2025-01-10", "2025-05-20"},
		{"turkish named date", "2025-01-10", "20 mayıs 2025", "", "2025-01-10", "2025-05-20"},
		{"date before post", "2025-06-10", "2025-05-20", "exact_date", "2025-05-20", "2025-05-20"},
		{"may as month alone", "2025-01-10", "may", "month", "2025-01-10", "2025-05-31"},
		{"may as month with year", "2025-01-10", "by may 2026", "", "2025-01-10", "2026-05-31"},
		{"may as verb typed month", "2025-01-10", "bitcoin may reach 100k in 3 months", "month", "2025-01-10", "2025-04-10"},
		{"may as verb with weeks", "2025-01-10", "gold may hit 3000 within 2 weeks", "", "2025-01-10", "2025-01-24"},
		{"years", "2025-01-10", "2 yıl", "", "2025-01-10", "2027-01-10"},
		{"half year", "2025-01-10", "yarım yıl", "", "2025-01-10", "2025-07-10"},
		{"weeks", "2025-01-10", "two weeks", "", "2025-01-10", "2025-01-24"},
		{"turkish weeks", "2025-01-10", "3 hafta içinde", "", "2025-01-10", "2025-01-31"},
		{"days", "2025-01-10", "10 gün", "", "2025-01-10", "2025-01-20"},
		{"turkish compound number", "2025-01-10", "on iki ay", "", "2025-01-10", "2026-01-10"},
		{"typed week count", "2025-01-10", "2", "week", "2025-01-10", "2025-01-24"},
		{"typed year calendar", "2025-01-10", "2026", "year", "2025-01-10", "2026-12-31"},
		{"fallback one month", "2025-01-10", "soon", "", "2025-01-10", "2025-02-10"},
		{"empty value", "2025-01-10", "", "custom", "2025-01-10", "2025-02-10"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			w, err := CalculateHorizonDateRange(day(tc.post), tc.value, tc.typ)
			require.NoError(t, err)
			require.Equal(t, tc.start, domain.DayKey(w.Start), "start")
			require.Equal(t, tc.end, domain.DayKey(w.End), "end")
			require.Equal(t, 1, w.Version)
			require.False(t, w.Corrected)
		})
	}
}

func TestCalculateHorizonDateRange_RelativeFormsStartAtPost(t *testing.T) {
	t.Parallel()
	post := time.Date(2025, 5, 5, 17, 30, 0, 0, time.UTC)
	for _, v := range []string{"3 months", "1 year", "2 weeks", "5 days", "whenever"} {
		w, err := CalculateHorizonDateRange(post, v, "custom")
		require.NoError(t, err)
		require.Equal(t, day("2025-05-05"), w.Start, v)
		require.False(t, w.End.Before(w.Start), v)
	}
}

func TestCalculateHorizonDateRange_RequiresPostDate(t *testing.T) {
	t.Parallel()
	_, err := CalculateHorizonDateRange(time.Time{}, "3 months", "month")
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}
