package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, expr string) Schedule {
	t.Helper()
	s, err := Parse(expr)
	require.NoError(t, err)
	return s
}

func TestEveryMinuteMatchesAnyTime(t *testing.T) {
	s := mustParse(t, "* * * * *")
	require.True(t, s.Matches(time.Date(2026, 1, 5, 9, 30, 0, 0, time.UTC)))
	require.True(t, s.Matches(time.Date(2026, 1, 5, 9, 30, 59, 0, time.UTC)))
}

func TestDomOrDowWhenBothRestricted(t *testing.T) {
	// "0 0 1 * 1" — fires on the 1st of the month OR every Monday.
	s := mustParse(t, "0 0 1 * 1")
	require.True(t, s.Matches(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)))  // dom match (Sunday)
	require.True(t, s.Matches(time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)))  // dow match (Monday)
	require.False(t, s.Matches(time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC))) // neither
}

func TestDow7NormalizesToSunday(t *testing.T) {
	s := mustParse(t, "0 0 * * 7")
	require.True(t, s.Matches(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))) // a Sunday
}

func TestStepAndRange(t *testing.T) {
	s := mustParse(t, "*/15 9-10 * * *")
	require.True(t, s.Matches(time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)))
	require.True(t, s.Matches(time.Date(2026, 1, 5, 9, 15, 0, 0, time.UTC)))
	require.False(t, s.Matches(time.Date(2026, 1, 5, 9, 10, 0, 0, time.UTC)))
	require.False(t, s.Matches(time.Date(2026, 1, 5, 11, 0, 0, 0, time.UTC)))
}

func TestPreviousAtOrBeforeAndNextAfter(t *testing.T) {
	s := mustParse(t, "0 * * * *") // top of every hour
	asOf := time.Date(2026, 1, 5, 9, 45, 0, 0, time.UTC)
	prev, ok := s.PreviousAtOrBefore(asOf, 0)
	require.True(t, ok)
	require.Equal(t, time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC), prev)

	next, ok := s.NextAfter(asOf, 0)
	require.True(t, ok)
	require.Equal(t, time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC), next)
}

func TestInvalidExpressionRejected(t *testing.T) {
	_, err := Parse("* * *")
	require.Error(t, err)

	_, err = Parse("60 * * * *")
	require.Error(t, err)
}
