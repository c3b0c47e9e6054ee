package scr_nav

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// DefaultNoReturnDistance is substituted for readings that carry no return.
const DefaultNoReturnDistance = 1000.0

// SanitizeScan returns a copy of scan with negative readings clamped to zero
// and non-finite readings replaced by noReturn.
func SanitizeScan(scan RangeScan, noReturn float64) RangeScan {
	out := make(RangeScan, len(scan))
	for i, r := range scan {
		switch {
		case math.IsNaN(r) || math.IsInf(r, 0):
			out[i] = noReturn
		case r < 0:
			out[i] = 0
		default:
			out[i] = r
		}
	}
	return out
}

// SplitSectors partitions scan into left, center, and right thirds in scan order.
// The boundaries are n/3 and 2n/3 with integer division.
func SplitSectors(scan RangeScan) (left, center, right RangeScan) {
	n := len(scan)
	return scan[:n/3], scan[n/3 : 2*n/3], scan[2*n/3:]
}

// SummarizeSectors computes the nearest reading and the mean of each sector.
// An empty sector takes the scan minimum as its mean. scan must not be empty.
func SummarizeSectors(scan RangeScan) SectorSummary {
	minRange := floats.Min(scan)
	left, center, right := SplitSectors(scan)
	return SectorSummary{
		Min:    minRange,
		Left:   sectorMean(left, minRange),
		Center: sectorMean(center, minRange),
		Right:  sectorMean(right, minRange),
	}
}

func sectorMean(sector RangeScan, fallback float64) float64 {
	if len(sector) == 0 {
		return fallback
	}
	return stat.Mean(sector, nil)
}
