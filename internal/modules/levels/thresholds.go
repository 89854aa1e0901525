package levels

import "math"

// FormulaKind selects how level thresholds are computed.
type FormulaKind string

const (
	FormulaLinear      FormulaKind = "linear"
	FormulaExponential FormulaKind = "exponential"
	FormulaCustomTable FormulaKind = "custom-table"
)

// Formula computes the total-XP threshold required to reach a level,
// precomputed at Initialise time into a lookup table. threshold(1) is
// always 0 and thresholds are strictly increasing in level.
type Formula struct {
	Kind FormulaKind

	// Linear: threshold(L) = BaseXP * (L-1)
	BaseXP int64

	// Exponential: threshold(L) = BaseXP * Growth^(L-1)
	Growth float64

	// CustomTable: explicit threshold per level, index 0 unused,
	// index 1 must be 0.
	Table []int64

	MaxLevel int
}

// BuildThresholds returns a 1-indexed slice (index 0 unused) of
// thresholds for levels 1..MaxLevel, guaranteed strictly increasing
// from threshold(1)=0.
func (f Formula) BuildThresholds() []int64 {
	if f.MaxLevel <= 0 {
		f.MaxLevel = 100
	}
	out := make([]int64, f.MaxLevel+1)
	switch f.Kind {
	case FormulaCustomTable:
		for i := 1; i <= f.MaxLevel && i < len(f.Table); i++ {
			out[i] = f.Table[i]
		}
	case FormulaExponential:
		growth := f.Growth
		if growth <= 1 {
			growth = 1.5
		}
		base := f.BaseXP
		if base <= 0 {
			base = 100
		}
		for i := 1; i <= f.MaxLevel; i++ {
			out[i] = int64(math.Round(float64(base) * math.Pow(growth, float64(i-1))))
		}
		out[1] = 0
	default: // linear
		base := f.BaseXP
		if base <= 0 {
			base = 100
		}
		for i := 1; i <= f.MaxLevel; i++ {
			out[i] = base * int64(i-1)
		}
	}

	// Enforce strictly increasing thresholds regardless of formula
	// rounding, and threshold(1) == 0.
	out[1] = 0
	for i := 2; i <= f.MaxLevel; i++ {
		if out[i] <= out[i-1] {
			out[i] = out[i-1] + 1
		}
	}
	return out
}

// LevelForXP returns the largest level L such that thresholds[L] <= xp.
func LevelForXP(thresholds []int64, xp int64) int {
	level := 1
	for l := 1; l < len(thresholds); l++ {
		if thresholds[l] <= xp {
			level = l
		} else {
			break
		}
	}
	return level
}
