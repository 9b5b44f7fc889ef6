// Package geometry computes joint angles between a reference and a live
// limb vector around a shared pivot.
package geometry

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// JointAngle is the angle swept between two vectors rooted at a pivot.
// StartRad and EndRad are the arc bounds for drawing; when they straddle
// the ±π boundary the smaller one is shifted by 2π so the arc always
// takes the short way.
type JointAngle struct {
	Deg      int
	Rad      float64
	StartRad float64
	EndRad   float64
	VectorA  r2.Vec
	VectorB  r2.Vec
}

// ComputeJointAngle returns the unsigned angle between pointA-pivot and
// pointB-pivot. A zero-length vector yields the zero JointAngle.
func ComputeJointAngle(pivot, pointA, pointB r2.Vec) JointAngle {
	a := r2.Sub(pointA, pivot)
	b := r2.Sub(pointB, pivot)

	magA, magB := r2.Norm(a), r2.Norm(b)
	if magA == 0 || magB == 0 {
		return JointAngle{}
	}

	out := JointAngle{VectorA: a, VectorB: b}

	cos := clamp(r2.Dot(a, b)/(magA*magB), -1, 1)
	out.Rad = math.Acos(cos)
	out.Deg = int(math.Round(out.Rad * 180 / math.Pi))

	out.StartRad, out.EndRad = arcBounds(a, b)
	return out
}

func arcBounds(a, b r2.Vec) (start, end float64) {
	start = math.Atan2(a.Y, a.X)
	end = math.Atan2(b.Y, b.X)
	if math.Abs(end-start) > math.Pi {
		if end > start {
			start += 2 * math.Pi
		} else {
			end += 2 * math.Pi
		}
	}
	return start, end
}

// Sweep is the signed arc sweep from StartRad to EndRad, never longer
// than π in magnitude.
func (j JointAngle) Sweep() float64 {
	return j.EndRad - j.StartRad
}

// ArcRadius is the drawing radius: the shorter of the two vectors scaled
// by f, in normalized units.
func (j JointAngle) ArcRadius(f float64) float64 {
	return math.Min(r2.Norm(j.VectorA), r2.Norm(j.VectorB)) * f
}

// IsZero reports whether the angle is degenerate.
func (j JointAngle) IsZero() bool {
	return j.Deg == 0 && j.Rad == 0
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
