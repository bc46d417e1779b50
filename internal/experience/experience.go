// Package experience maps accumulated experience points to levels and computes
// level-scaled awards. All functions are pure; callers persist the results.
package experience

import (
	"github.com/shopspring/decimal"
)

var (
	baseRequirement = decimal.NewFromInt(100)
	growthRate      = decimal.RequireFromString("1.15")
	multiplierStep  = decimal.RequireFromString("0.05")
)

// Result is the outcome of applying one award.
type Result struct {
	NewLevel  int   `json:"new_level"`
	NewXP     int64 `json:"new_xp"`
	Awarded   int64 `json:"awarded"`
	LeveledUp bool  `json:"leveled_up"`
}

// RequiredForLevel returns the experience needed to advance from level to
// level+1: floor(100 * 1.15^(level-1)). Levels below 1 are treated as 1.
func RequiredForLevel(level int) int64 {
	if level < 1 {
		level = 1
	}
	v := baseRequirement
	for i := 1; i < level; i++ {
		v = v.Mul(growthRate)
	}
	return v.Floor().IntPart()
}

// TotalExperienceForLevel is the cumulative experience at which level starts.
func TotalExperienceForLevel(level int) int64 {
	var total int64
	thresholds(func(l int, required int64) bool {
		if l >= level {
			return false
		}
		total += required
		return true
	})
	return total
}

// LevelForTotalExperience returns the largest level whose starting threshold
// does not exceed totalXP. Thresholds are accumulated in order.
func LevelForTotalExperience(totalXP int64) int {
	if totalXP <= 0 {
		return 1
	}
	level := 1
	var reached int64
	thresholds(func(l int, required int64) bool {
		if reached+required > totalXP {
			return false
		}
		reached += required
		level = l + 1
		return true
	})
	return level
}

// ExperienceInCurrentLevel is how far totalXP has progressed past the start of level.
func ExperienceInCurrentLevel(totalXP int64, level int) int64 {
	return totalXP - TotalExperienceForLevel(level)
}

// ExperienceToNextLevel is the experience still missing before level+1, never negative.
func ExperienceToNextLevel(totalXP int64, level int) int64 {
	remaining := RequiredForLevel(level) - ExperienceInCurrentLevel(totalXP, level)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// MultiplierForLevel returns 1 + (level-1) * 0.05.
func MultiplierForLevel(level int) decimal.Decimal {
	if level < 1 {
		level = 1
	}
	return decimal.NewFromInt(1).Add(multiplierStep.Mul(decimal.NewFromInt(int64(level - 1))))
}

// AwardedFor scales baseXP by the level multiplier, rounding half away from zero.
func AwardedFor(baseXP int64, level int) int64 {
	return decimal.NewFromInt(baseXP).Mul(MultiplierForLevel(level)).Round(0).IntPart()
}

// Award applies baseXP at currentLevel on top of currentXP.
func Award(baseXP int64, currentLevel int, currentXP int64) Result {
	if baseXP < 0 {
		baseXP = 0
	}
	if currentXP < 0 {
		currentXP = 0
	}
	if currentLevel < 1 {
		currentLevel = 1
	}
	awarded := AwardedFor(baseXP, currentLevel)
	newXP := currentXP + awarded
	newLevel := LevelForTotalExperience(newXP)
	return Result{
		NewLevel:  newLevel,
		NewXP:     newXP,
		Awarded:   awarded,
		LeveledUp: newLevel > currentLevel,
	}
}

// thresholds walks per-level requirements from level 1 upward until visit
// returns false. The running value is carried exactly and floored per level.
func thresholds(visit func(level int, required int64) bool) {
	v := baseRequirement
	for level := 1; ; level++ {
		if !visit(level, v.Floor().IntPart()) {
			return
		}
		v = v.Mul(growthRate)
	}
}
