// Package wheel は景品ホイールの回転計画・アニメーション駆動・結果確定を扱う。
package wheel

// スロースタート・スローアライバルのcubic-bezier制御点。端点は(0,0)と(1,1)。
const (
	easeX1 = 0.1
	easeY1 = 0.0
	easeX2 = 0.0
	easeY2 = 1.0

	easeIterations = 24
)

// Ease maps a linear time fraction to eased progress on the wheel's
// cubic-bezier curve. Inputs outside [0,1] are clamped.
func Ease(t float64) float64 {
	if t <= 0 {
		return 0
	}
	if t >= 1 {
		return 1
	}

	// x(u)は単調増加なので二分法で x(u) = t を解く
	lo, hi := 0.0, 1.0
	u := t
	for i := 0; i < easeIterations; i++ {
		u = (lo + hi) * 0.5
		if bezierComponent(easeX1, easeX2, u) < t {
			lo = u
		} else {
			hi = u
		}
	}
	u = (lo + hi) * 0.5

	return clampUnit(bezierComponent(easeY1, easeY2, u))
}

func bezierComponent(p1, p2, u float64) float64 {
	inv := 1 - u
	return 3*inv*inv*u*p1 + 3*inv*u*u*p2 + u*u*u
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
