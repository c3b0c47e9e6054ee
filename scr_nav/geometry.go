package scr_nav

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// NormalizeAngle wraps an angle in radians into (-pi, pi].
func NormalizeAngle(a float64) float64 {
	if math.IsNaN(a) || math.IsInf(a, 0) {
		return a
	}
	if a > -math.Pi && a <= math.Pi {
		return a
	}
	r := math.Mod(a+math.Pi, 2*math.Pi)
	if r < 0 {
		r += 2 * math.Pi
	}
	r -= math.Pi
	if r <= -math.Pi {
		return math.Pi
	}
	return r
}

// YawFromQuaternion extracts the rotation about the vertical axis.
// Roll and pitch are discarded.
func YawFromQuaternion(q quat.Number) float64 {
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag
	return math.Atan2(2*(w*z+x*y), 1-2*(y*y+z*z))
}

// QuaternionFromYaw returns the unit quaternion for a pure yaw rotation.
func QuaternionFromYaw(yaw float64) quat.Number {
	return quat.Number{Real: math.Cos(yaw / 2), Kmag: math.Sin(yaw / 2)}
}

// PoseFromSample converts a localization reading into a planar pose.
func PoseFromSample(s PoseSample) Pose2D {
	return Pose2D{X: s.X, Y: s.Y, Theta: NormalizeAngle(YawFromQuaternion(s.Orientation))}
}

// ComputeGoalGeometry returns the goal offset, distance, bearing, and the
// heading error of pose relative to the bearing.
func ComputeGoalGeometry(pose, goal Pose2D) GoalGeometry {
	offset := r3.Vector{X: goal.X - pose.X, Y: goal.Y - pose.Y}
	bearing := math.Atan2(offset.Y, offset.X)
	return GoalGeometry{
		DX:        offset.X,
		DY:        offset.Y,
		Distance:  offset.Norm(),
		Bearing:   bearing,
		AngleDiff: NormalizeAngle(bearing - NormalizeAngle(pose.Theta)),
	}
}
