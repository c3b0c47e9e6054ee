package scr_nav

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/num/quat"
)

func TestNormalizeAngle(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want float64
	}{
		{"zero", 0, 0},
		{"inside", 1.0, 1.0},
		{"pi stays pi", math.Pi, math.Pi},
		{"minus pi maps to pi", -math.Pi, math.Pi},
		{"just over pi", math.Pi + 0.5, -math.Pi + 0.5},
		{"just under minus pi", -math.Pi - 0.5, math.Pi - 0.5},
		{"full turn", 2 * math.Pi, 0},
		{"many turns", 10*math.Pi + 0.25, 0.25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, NormalizeAngle(tt.in), 1e-9)
		})
	}
}

func TestNormalizeAngleRangeAndIdempotence(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 10000; i++ {
		a := (rng.Float64() - 0.5) * 200
		n := NormalizeAngle(a)
		require.Greater(t, n, -math.Pi, "angle %v", a)
		require.LessOrEqual(t, n, math.Pi, "angle %v", a)
		require.Equal(t, n, NormalizeAngle(n), "angle %v", a)
	}
}

func TestYawFromQuaternion(t *testing.T) {
	assert.InDelta(t, 0, YawFromQuaternion(quat.Number{Real: 1}), 1e-12)

	for _, yaw := range []float64{-3, -math.Pi / 2, -0.3, 0.1, math.Pi / 6, math.Pi / 2, 3} {
		assert.InDelta(t, yaw, YawFromQuaternion(QuaternionFromYaw(yaw)), 1e-9, "yaw %v", yaw)
	}

	// 90 degree roll about x leaves yaw at zero.
	roll := quat.Number{Real: math.Cos(math.Pi / 4), Imag: math.Sin(math.Pi / 4)}
	assert.InDelta(t, 0, YawFromQuaternion(roll), 1e-9)
}

func TestPoseFromSample(t *testing.T) {
	pose := PoseFromSample(PoseSample{X: 1.5, Y: -2, Orientation: QuaternionFromYaw(math.Pi / 3)})
	assert.Equal(t, 1.5, pose.X)
	assert.Equal(t, -2.0, pose.Y)
	assert.InDelta(t, math.Pi/3, pose.Theta, 1e-9)
}

func TestComputeGoalGeometry(t *testing.T) {
	g := ComputeGoalGeometry(Pose2D{X: 0, Y: 0, Theta: 0}, Pose2D{X: 3, Y: 4})
	assert.Equal(t, 3.0, g.DX)
	assert.Equal(t, 4.0, g.DY)
	assert.InDelta(t, 5.0, g.Distance, 1e-12)
	assert.InDelta(t, math.Atan2(4, 3), g.Bearing, 1e-12)
	assert.InDelta(t, math.Atan2(4, 3), g.AngleDiff, 1e-12)

	// Heading error wraps across the +-pi seam.
	g = ComputeGoalGeometry(Pose2D{Theta: 3}, Pose2D{X: -1, Y: -0.1})
	assert.InDelta(t, NormalizeAngle(math.Atan2(-0.1, -1)-3), g.AngleDiff, 1e-12)
	assert.Greater(t, g.AngleDiff, -math.Pi)
	assert.LessOrEqual(t, g.AngleDiff, math.Pi)
}
