package geometry

import (
	"math"
	"math/rand/v2"
	"testing"

	"gonum.org/v1/gonum/spatial/r2"
)

// TestComputeJointAngleKnown verifies common joint configurations.
func TestComputeJointAngleKnown(t *testing.T) {
	tests := []struct {
		name                  string
		pivot, pointA, pointB r2.Vec
		wantDeg               int
	}{
		{"right angle", r2.Vec{X: 0.5, Y: 0.5}, r2.Vec{X: 0.5, Y: 0.8}, r2.Vec{X: 0.8, Y: 0.5}, 90},
		{"same direction", r2.Vec{}, r2.Vec{X: 1}, r2.Vec{X: 2}, 0},
		{"opposite", r2.Vec{}, r2.Vec{X: 1}, r2.Vec{X: -1}, 180},
		{"forty five", r2.Vec{}, r2.Vec{X: 1}, r2.Vec{X: 1, Y: 1}, 45},
		{"arm raise", r2.Vec{X: 0.4, Y: 0.3}, r2.Vec{X: 0.4, Y: 0.6}, r2.Vec{X: 0.1, Y: 0.3}, 90},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeJointAngle(tt.pivot, tt.pointA, tt.pointB)
			if got.Deg != tt.wantDeg {
				t.Errorf("Deg = %d, want %d", got.Deg, tt.wantDeg)
			}
		})
	}
}

// TestComputeJointAngleDegenerate verifies a zero-length vector returns a
// zero angle instead of NaN.
func TestComputeJointAngleDegenerate(t *testing.T) {
	p := r2.Vec{X: 0.3, Y: 0.3}
	cases := [][3]r2.Vec{
		{p, p, r2.Vec{X: 0.9, Y: 0.1}},
		{p, r2.Vec{X: 0.9, Y: 0.1}, p},
		{p, p, p},
	}
	for _, c := range cases {
		got := ComputeJointAngle(c[0], c[1], c[2])
		if got != (JointAngle{}) {
			t.Errorf("ComputeJointAngle(%v) = %+v, want zero", c, got)
		}
		if math.IsNaN(got.Rad) {
			t.Error("Rad is NaN")
		}
	}
}

// TestComputeJointAngleProperties checks range, the acos formula and the
// short-way arc bounds over random inputs.
func TestComputeJointAngleProperties(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	vec := func() r2.Vec { return r2.Vec{X: rng.Float64(), Y: rng.Float64()} }

	for i := 0; i < 5000; i++ {
		pivot, a, b := vec(), vec(), vec()
		got := ComputeJointAngle(pivot, a, b)

		va, vb := r2.Sub(a, pivot), r2.Sub(b, pivot)
		if r2.Norm(va) == 0 || r2.Norm(vb) == 0 {
			continue
		}
		if got.Deg < 0 || got.Deg > 180 {
			t.Fatalf("Deg = %d out of [0,180]", got.Deg)
		}

		cos := r2.Dot(va, vb) / (r2.Norm(va) * r2.Norm(vb))
		cos = math.Max(-1, math.Min(1, cos))
		if want := int(math.Round(math.Acos(cos) * 180 / math.Pi)); got.Deg != want {
			t.Fatalf("Deg = %d, want %d", got.Deg, want)
		}

		if d := math.Abs(got.EndRad - got.StartRad); d > math.Pi+1e-9 {
			t.Fatalf("arc bounds %v..%v span %v > π", got.StartRad, got.EndRad, d)
		}
		if again := ComputeJointAngle(pivot, a, b); again != got {
			t.Fatalf("recomputation differs: %+v vs %+v", again, got)
		}
	}
}

// TestArcWrap verifies vectors straddling the ±π boundary get bounds that
// sweep the short way in the original direction.
func TestArcWrap(t *testing.T) {
	// A points just above -X (atan2 ≈ π-0.1), B just below (≈ -π+0.1).
	pivot := r2.Vec{}
	a := r2.Vec{X: -math.Cos(0.1), Y: math.Sin(0.1)}
	b := r2.Vec{X: -math.Cos(0.1), Y: -math.Sin(0.1)}

	got := ComputeJointAngle(pivot, a, b)
	if got.Deg != 11 {
		t.Errorf("Deg = %d, want 11", got.Deg)
	}
	if math.Abs(got.Sweep()-0.2) > 1e-9 {
		t.Errorf("Sweep = %v, want 0.2", got.Sweep())
	}
	if got.EndRad <= math.Pi {
		t.Errorf("EndRad = %v, want shifted past π", got.EndRad)
	}

	// Reversed inputs sweep the other way.
	rev := ComputeJointAngle(pivot, b, a)
	if math.Abs(rev.Sweep()+0.2) > 1e-9 {
		t.Errorf("reversed Sweep = %v, want -0.2", rev.Sweep())
	}
	if rev.StartRad <= math.Pi {
		t.Errorf("reversed StartRad = %v, want shifted past π", rev.StartRad)
	}
}

// TestArcRadius verifies the radius follows the shorter vector.
func TestArcRadius(t *testing.T) {
	got := ComputeJointAngle(r2.Vec{}, r2.Vec{X: 0.2}, r2.Vec{Y: 0.5})
	if r := got.ArcRadius(0.6); math.Abs(r-0.12) > 1e-12 {
		t.Errorf("ArcRadius = %v, want 0.12", r)
	}
}

// TestComputeJointAngleUnsigned verifies the measured degrees ignore the
// direction of rotation while Sweep keeps it.
func TestComputeJointAngleUnsigned(t *testing.T) {
	pivot := r2.Vec{X: 0.5, Y: 0.5}
	down := r2.Vec{X: 0.5, Y: 0.8}
	right := r2.Vec{X: 0.8, Y: 0.5}

	cw := ComputeJointAngle(pivot, down, right)
	ccw := ComputeJointAngle(pivot, right, down)
	if cw.Deg != 90 || ccw.Deg != 90 {
		t.Errorf("Deg = %d and %d, want 90 both ways", cw.Deg, ccw.Deg)
	}
	if cw.Sweep()*ccw.Sweep() >= 0 {
		t.Errorf("Sweep = %v and %v, want opposite signs", cw.Sweep(), ccw.Sweep())
	}
	if math.Abs(math.Abs(cw.Sweep())-math.Pi/2) > 1e-9 {
		t.Errorf("|Sweep| = %v, want π/2", math.Abs(cw.Sweep()))
	}
}
