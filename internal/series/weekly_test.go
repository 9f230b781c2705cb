package series

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregateWeekly_LastObservationPerISOWeek(t *testing.T) {
	daily := []Observation{
		obs(2024, time.December, 30, "11.0"),
		obs(2024, time.December, 31, "11.1"),
		obs(2025, time.January, 2, "11.2"),
		obs(2025, time.January, 7, "11.5"),
	}

	got := AggregateWeekly(daily)

	require.Len(t, got, 2)
	assert.True(t, got[0].Equal(obs(2025, time.January, 2, "11.2")))
	assert.True(t, got[1].Equal(obs(2025, time.January, 7, "11.5")))
}

func TestAggregateWeekly_UnorderedInput(t *testing.T) {
	daily := []Observation{
		obs(2024, time.August, 16, "10.7"),
		obs(2024, time.August, 12, "10.1"),
		obs(2024, time.August, 5, "9.9"),
		obs(2024, time.August, 14, "10.4"),
	}

	got := AggregateWeekly(daily)

	require.Len(t, got, 2)
	assert.True(t, got[0].Equal(obs(2024, time.August, 5, "9.9")))
	assert.True(t, got[1].Equal(obs(2024, time.August, 16, "10.7")))
}

func TestAggregateWeekly_Empty(t *testing.T) {
	assert.Empty(t, AggregateWeekly(nil))
}
