package wheel

import "testing"

func TestEase_Endpoints(t *testing.T) {
	if got := Ease(0); got != 0 {
		t.Fatalf("Ease(0): got=%v want=0", got)
	}
	if got := Ease(1); got != 1 {
		t.Fatalf("Ease(1): got=%v want=1", got)
	}
	if got := Ease(-0.5); got != 0 {
		t.Fatalf("Ease(-0.5) should clamp to 0: got=%v", got)
	}
	if got := Ease(3); got != 1 {
		t.Fatalf("Ease(3) should clamp to 1: got=%v", got)
	}
}

func TestEase_BoundedAndMonotonic(t *testing.T) {
	prev := Ease(0)
	for i := 1; i <= 1000; i++ {
		x := float64(i) / 1000
		y := Ease(x)
		if y < 0 || y > 1 {
			t.Fatalf("Ease(%v) out of range: %v", x, y)
		}
		if y < prev {
			t.Fatalf("Ease not monotonic at %v: prev=%v got=%v", x, prev, y)
		}
		prev = y
	}
}

func TestEase_CurveShape(t *testing.T) {
	// 立ち上がりは線形より遅く、中盤で大きく進み、終盤は緩やかに止まる
	if got := Ease(0.01); got >= 0.01 {
		t.Fatalf("start should lag linear progress: got=%v", got)
	}
	if got := Ease(0.5); got < 0.85 || got > 0.92 {
		t.Fatalf("unexpected midpoint: got=%v", got)
	}
	middle := Ease(0.525) - Ease(0.475)
	late := Ease(1) - Ease(0.95)
	if late >= middle {
		t.Fatalf("arrival should be slower than middle: late=%v middle=%v", late, middle)
	}
}
