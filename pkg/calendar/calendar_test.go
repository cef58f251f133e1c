package calendar

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeekdayOf(t *testing.T) {
	assert.Equal(t, 0, WeekdayOf(time.Date(2025, 1, 19, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 1, WeekdayOf(time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 3, WeekdayOf(time.Date(2025, 1, 22, 0, 0, 0, 0, time.UTC)))
}

func TestIsDeliverableWeekday(t *testing.T) {
	start := time.Date(2025, 1, 19, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 7; i++ {
		day := start.AddDate(0, 0, i)
		want := day.Weekday() == time.Monday || day.Weekday() == time.Tuesday
		assert.Equal(t, want, IsDeliverableWeekday(day), day.Weekday().String())
	}
}

func TestFormatISODateUsesOwnCalendarFields(t *testing.T) {
	paris, err := time.LoadLocation("Europe/Paris")
	require.NoError(t, err)

	// 00:30 in Paris is still the previous day in UTC.
	late := time.Date(2025, 3, 3, 0, 30, 0, 0, paris)
	assert.Equal(t, "2025-03-03", FormatISODate(late))
	assert.Equal(t, "2025-03-02", FormatISODate(late.UTC()))

	assert.Equal(t, "0987-01-05", FormatISODate(time.Date(987, 1, 5, 0, 0, 0, 0, time.UTC)))
}

func TestFormatISODateRoundTrips(t *testing.T) {
	start := time.Date(2023, 12, 25, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 800; i += 7 {
		day := start.AddDate(0, 0, i)
		parsed, err := ParseISODate(FormatISODate(day))
		require.NoError(t, err)
		y, m, d := day.Date()
		py, pm, pd := parsed.Date()
		require.Equal(t, []int{y, int(m), d}, []int{py, int(pm), pd})
	}
}

func TestParseISODateRejectsGarbage(t *testing.T) {
	_, err := ParseISODate("27/01/2025")
	assert.Error(t, err)
	_, err = ParseISODate("2025-02-30")
	assert.Error(t, err)
}

func TestAddMonthsRollsOver(t *testing.T) {
	jan31 := time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "2025-03-03", FormatISODate(AddMonths(jan31, 1)))

	leap := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "2024-03-02", FormatISODate(AddMonths(leap, 1)))
}

func TestFrenchLabels(t *testing.T) {
	assert.Equal(t, "Lundi", FrenchWeekdayLabel(time.Monday))
	assert.Equal(t, "Mardi", FrenchWeekdayLabel(time.Tuesday))
	assert.Equal(t, "", FrenchWeekdayLabel(time.Weekday(9)))

	day := time.Date(2025, 1, 27, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "lundi 27 janvier 2025", FormatFrenchLong(day))
	assert.Equal(t, "mardi 12 août 2025", FormatFrenchLong(time.Date(2025, 8, 12, 0, 0, 0, 0, time.UTC)))
}

func TestDateKeepsLocation(t *testing.T) {
	paris, err := time.LoadLocation("Europe/Paris")
	require.NoError(t, err)
	in := time.Date(2025, 1, 22, 23, 59, 0, 0, paris)
	out := Date(in)
	assert.Equal(t, paris, out.Location())
	assert.Equal(t, 0, out.Hour())
	assert.Equal(t, 22, out.Day())
	assert.Equal(t, time.Date(2025, 1, 22, 0, 0, 0, 0, time.UTC), AsUTCDate(in))
}
