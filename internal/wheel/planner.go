package wheel

import "math"

const (
	MinTurns = 2
	MaxTurns = 10

	MinDurationMs = 8000
	MaxDurationMs = 60000
)

// ClampTurns limits the number of full turns to [MinTurns, MaxTurns].
func ClampTurns(turns int) int {
	if turns < MinTurns {
		return MinTurns
	}
	if turns > MaxTurns {
		return MaxTurns
	}
	return turns
}

// ClampDurationMs limits the spin duration to [MinDurationMs, MaxDurationMs].
func ClampDurationMs(ms int) int {
	if ms < MinDurationMs {
		return MinDurationMs
	}
	if ms > MaxDurationMs {
		return MaxDurationMs
	}
	return ms
}

// normalizeDeg は角度を[0,360)に正規化する
func normalizeDeg(deg float64) float64 {
	m := math.Mod(deg, 360)
	if m < 0 {
		m += 360
	}
	if m >= 360 {
		m = 0
	}
	return m
}

// PlanRotation returns the absolute rotation at which the pointer rests on
// the centre of the winner's segment after the given number of turns.
// The result is never less than currentDeg.
func PlanRotation(currentDeg float64, winnerIndex, segmentCount, turns int, reversed bool) float64 {
	if segmentCount < 1 {
		segmentCount = 1
	}
	segmentAngle := 360 / float64(segmentCount)
	winnerMid := float64(winnerIndex)*segmentAngle + segmentAngle/2

	target := winnerMid
	if reversed {
		target = normalizeDeg(360 - winnerMid)
	}

	currentMod := normalizeDeg(currentDeg)
	offset := normalizeDeg(target - currentMod)

	return currentDeg + float64(ClampTurns(turns))*360 + offset
}

// ResolveSegmentIndex maps an absolute rotation back to the segment under
// the pointer, mirroring when the direction is reversed.
func ResolveSegmentIndex(rotationDeg float64, segmentCount int, reversed bool) int {
	if segmentCount < 1 {
		return 0
	}
	segmentAngle := 360 / float64(segmentCount)

	angle := normalizeDeg(rotationDeg)
	if reversed {
		angle = normalizeDeg(360 - angle)
	}

	idx := int(math.Floor(angle / segmentAngle))
	if idx >= segmentCount {
		idx = segmentCount - 1
	}
	if idx < 0 {
		idx = 0
	}
	return idx
}
