package wheel

import (
	"fmt"
	"math"
)

// labelRadiusRatio はラベルを配置する半径の比率
const labelRadiusRatio = 0.62

// Point is a 2D point in screen space (y grows downwards).
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Segment describes the drawable geometry of one wheel slice.
type Segment struct {
	Index      int     `json:"index"`
	StartDeg   float64 `json:"start_deg"`
	EndDeg     float64 `json:"end_deg"`
	MidDeg     float64 `json:"mid_deg"`
	Path       string  `json:"path"`
	Label      Point   `json:"label"`
	LabelAngle float64 `json:"label_angle"`
	LabelFlip  bool    `json:"label_flip"`
}

// SegmentAngle returns the angular width of one segment in degrees.
func SegmentAngle(segmentCount int) float64 {
	if segmentCount < 1 {
		return 360
	}
	return 360 / float64(segmentCount)
}

// SegmentBounds returns the start and end angle of segment i, measured
// clockwise from the top. Reversed direction mirrors the layout.
func SegmentBounds(i, segmentCount int, reversed bool) (start, end float64) {
	a := SegmentAngle(segmentCount)
	start = float64(i) * a
	end = start + a
	if reversed {
		start, end = 360-end, 360-start
	}
	return start, end
}

// PointOnCircle returns the point at angleDeg (0 = top, clockwise).
func PointOnCircle(cx, cy, r, angleDeg float64) Point {
	rad := angleDeg * math.Pi / 180
	return Point{
		X: cx + r*math.Sin(rad),
		Y: cy - r*math.Cos(rad),
	}
}

// ArcPath returns an SVG path for the pie slice between two angles.
func ArcPath(cx, cy, r, startDeg, endDeg float64) string {
	sweep := endDeg - startDeg
	if sweep >= 360 {
		// 1セグメントのみの場合は円全体を2つの半円で描く
		top := PointOnCircle(cx, cy, r, 0)
		bottom := PointOnCircle(cx, cy, r, 180)
		return fmt.Sprintf("M %s %s A %s %s 0 1 1 %s %s A %s %s 0 1 1 %s %s Z",
			fmtCoord(top.X), fmtCoord(top.Y),
			fmtCoord(r), fmtCoord(r), fmtCoord(bottom.X), fmtCoord(bottom.Y),
			fmtCoord(r), fmtCoord(r), fmtCoord(top.X), fmtCoord(top.Y))
	}

	p1 := PointOnCircle(cx, cy, r, startDeg)
	p2 := PointOnCircle(cx, cy, r, endDeg)
	largeArc := 0
	if sweep > 180 {
		largeArc = 1
	}
	return fmt.Sprintf("M %s %s L %s %s A %s %s 0 %d 1 %s %s Z",
		fmtCoord(cx), fmtCoord(cy),
		fmtCoord(p1.X), fmtCoord(p1.Y),
		fmtCoord(r), fmtCoord(r), largeArc,
		fmtCoord(p2.X), fmtCoord(p2.Y))
}

// LabelAngle returns the rotation for a radial label so text reads outward;
// flip is true when the label sits on the lower half and should be turned.
func LabelAngle(midDeg float64) (angle float64, flip bool) {
	angle = normalizeDeg(midDeg - 90)
	flip = midDeg > 180 && midDeg < 360
	if flip {
		angle = normalizeDeg(angle + 180)
	}
	return angle, flip
}

// Segments computes the geometry of every slice of a wheel centred at
// (cx, cy) with radius r.
func Segments(segmentCount int, cx, cy, r float64, reversed bool) []Segment {
	if segmentCount < 1 {
		return nil
	}

	segments := make([]Segment, 0, segmentCount)
	for i := 0; i < segmentCount; i++ {
		start, end := SegmentBounds(i, segmentCount, reversed)
		mid := (start + end) / 2
		angle, flip := LabelAngle(mid)
		segments = append(segments, Segment{
			Index:      i,
			StartDeg:   start,
			EndDeg:     end,
			MidDeg:     mid,
			Path:       ArcPath(cx, cy, r, start, end),
			Label:      PointOnCircle(cx, cy, r*labelRadiusRatio, mid),
			LabelAngle: angle,
			LabelFlip:  flip,
		})
	}
	return segments
}

func fmtCoord(v float64) string {
	// -0.00 を避ける
	if math.Abs(v) < 0.005 {
		v = 0
	}
	return fmt.Sprintf("%.2f", v)
}
