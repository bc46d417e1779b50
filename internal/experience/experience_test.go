package experience

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRequiredForLevel(t *testing.T) {
	cases := map[int]int64{
		0:  100,
		1:  100,
		2:  115,
		3:  132,
		11: 404,
	}
	for level, want := range cases {
		require.Equalf(t, want, RequiredForLevel(level), "level %d", level)
	}
}

func TestTotalExperienceForLevel(t *testing.T) {
	require.Equal(t, int64(0), TotalExperienceForLevel(0))
	require.Equal(t, int64(0), TotalExperienceForLevel(1))
	require.Equal(t, int64(100), TotalExperienceForLevel(2))
	require.Equal(t, int64(215), TotalExperienceForLevel(3))
}

func TestLevelRoundTrip(t *testing.T) {
	for level := 1; level <= 60; level++ {
		total := TotalExperienceForLevel(level)
		require.Equalf(t, level, LevelForTotalExperience(total), "level %d (xp %d)", level, total)
		if total > 0 {
			require.Equalf(t, level-1, LevelForTotalExperience(total-1), "one below level %d", level)
		}
	}
}

func TestLevelIsMonotonic(t *testing.T) {
	prev := LevelForTotalExperience(0)
	for xp := int64(0); xp <= 20000; xp += 7 {
		got := LevelForTotalExperience(xp)
		require.GreaterOrEqualf(t, got, prev, "xp %d", xp)
		prev = got
	}
	require.Equal(t, 1, LevelForTotalExperience(-50))
}

func TestMultiplierForLevel(t *testing.T) {
	require.Equal(t, "1", MultiplierForLevel(1).String())
	require.Equal(t, "1.05", MultiplierForLevel(2).String())
	require.Equal(t, "1.5", MultiplierForLevel(11).String())
}

func TestAward(t *testing.T) {
	res := Award(25, 1, 0)
	require.Equal(t, Result{NewLevel: 1, NewXP: 25, Awarded: 25, LeveledUp: false}, res)

	res = Award(25, 1, 90)
	require.Equal(t, int64(115), res.NewXP)
	require.Equal(t, 2, res.NewLevel)
	require.True(t, res.LeveledUp)
}

func TestAwardAppliesMultiplierWithRounding(t *testing.T) {
	// 25 * 1.1 = 27.5 rounds away from zero.
	res := Award(25, 3, 215)
	require.Equal(t, int64(28), res.Awarded)
	require.Equal(t, int64(243), res.NewXP)
	require.Equal(t, 3, res.NewLevel)
	require.False(t, res.LeveledUp)
}

func TestExperienceProgressHelpers(t *testing.T) {
	require.Equal(t, int64(15), ExperienceInCurrentLevel(115, 2))
	require.Equal(t, int64(100), ExperienceToNextLevel(115, 2))
	require.Equal(t, int64(0), ExperienceToNextLevel(500, 1))
}

func TestBaseXP(t *testing.T) {
	xp, err := BaseXP(ActionGenerateExtended)
	require.NoError(t, err)
	require.Equal(t, int64(40), xp)

	_, err = BaseXP("dance")
	require.Error(t, err)
}
