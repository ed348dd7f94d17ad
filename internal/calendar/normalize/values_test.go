package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calsync/internal/calendar/models"
)

func TestCleanDisplay(t *testing.T) {
	for _, empty := range []string{"", "  ", "--", "-", "n/a", "N/A", "na"} {
		assert.Nil(t, cleanDisplay(empty), "value %q", empty)
	}

	got := cleanDisplay(" 3.2% ")
	require.NotNil(t, got)
	assert.Equal(t, "3.2%", *got)
}

func TestParseNumber(t *testing.T) {
	cases := []struct {
		display string
		want    float64
		ok      bool
	}{
		{"3.2%", 3.2, true},
		{"-0.5", -0.5, true},
		{"+1.4", 1.4, true},
		{"227K", 227_000, true},
		{"1.2B", 1.2e9, true},
		{"0.8m", 0.8e6, true},
		{"1,250", 1250, true},
		{".5", 0.5, true},
		{"Pass", 0, false},
		{"", 0, false},
		{"K", 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.display, func(t *testing.T) {
			got, ok := parseNumber(tc.display)
			assert.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.InDelta(t, tc.want, got, 1e-9)
			}
		})
	}
}

func TestDeriveObservedStatus(t *testing.T) {
	s := func(v string) *string { return &v }

	t.Run("higher than prior is better", func(t *testing.T) {
		got := deriveObservedStatus(s("3.4%"), s("3.2%"))
		require.NotNil(t, got)
		assert.Equal(t, models.ObservedBetter, *got)
	})

	t.Run("lower than prior is worse", func(t *testing.T) {
		got := deriveObservedStatus(s("210K"), s("227K"))
		require.NotNil(t, got)
		assert.Equal(t, models.ObservedWorse, *got)
	})

	t.Run("equal is unchanged", func(t *testing.T) {
		got := deriveObservedStatus(s("0.5"), s("0.5"))
		require.NotNil(t, got)
		assert.Equal(t, models.ObservedUnchanged, *got)
	})

	t.Run("nil inputs give no status", func(t *testing.T) {
		assert.Nil(t, deriveObservedStatus(nil, s("1")))
		assert.Nil(t, deriveObservedStatus(s("1"), nil))
	})

	t.Run("qualitative values give no status", func(t *testing.T) {
		assert.Nil(t, deriveObservedStatus(s("Pass"), s("Fail")))
	})
}

func TestClassifyImportance(t *testing.T) {
	cases := []struct {
		label string
		want  models.Importance
	}{
		{"High Impact Expected", models.ImportanceHigh},
		{"red", models.ImportanceHigh},
		{"Medium Impact Expected", models.ImportanceMedium},
		{"orange", models.ImportanceMedium},
		{"yellow", models.ImportanceMedium},
		{"Low Impact Expected", models.ImportanceLow},
		{"grey", models.ImportanceLow},
		{"Non-Economic Holiday", models.ImportanceLow},
		{"3", models.ImportanceHigh},
		{"2", models.ImportanceMedium},
		{"1", models.ImportanceLow},
		{"0", models.ImportanceUnknown},
		{"!!!", models.ImportanceHigh},
		{"!!", models.ImportanceMedium},
		{"!", models.ImportanceLow},
		{"", models.ImportanceUnknown},
		{"something else", models.ImportanceUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.label, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifyImportance(tc.label))
		})
	}
}
