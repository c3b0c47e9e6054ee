package scr_nav

import (
	"math"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func uniformScan(n int, r float64) RangeScan {
	scan := make(RangeScan, n)
	for i := range scan {
		scan[i] = r
	}
	return scan
}

func newObservedController(t *testing.T, cfg ControllerConfig, initial, goal Pose2D) (*Controller, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	return NewController(cfg, initial, goal, zap.New(core)), logs
}

func TestTickWithoutScanEmitsNothing(t *testing.T) {
	c, logs := newObservedController(t, DefaultControllerConfig(), Pose2D{}, Pose2D{X: 10})

	for i := 0; i < 3; i++ {
		cmd, ok := c.Tick()
		assert.False(t, ok)
		assert.Equal(t, Stop, cmd)
	}
	assert.Equal(t, 3, logs.FilterMessage("no sensor data yet").Len())

	c.UpdateScan(RangeScan{})
	_, ok := c.Tick()
	assert.False(t, ok, "zero-length scan counts as missing input")

	c.UpdateScan(uniformScan(10, 2))
	_, ok = c.Tick()
	assert.True(t, ok, "recovers once data arrives")
}

func TestScenarioGoalReachedStops(t *testing.T) {
	goal := Pose2D{X: 2, Y: 3}
	c, logs := newObservedController(t, DefaultControllerConfig(), goal, goal)
	c.UpdateScan(uniformScan(10, 1.0))

	d := c.Decide()
	assert.Equal(t, BranchGoalReached, d.Branch)
	assert.Equal(t, Stop, d.Command)
	assert.True(t, d.Publish)
	assert.Equal(t, 1, logs.FilterMessage("goal reached").Len())
}

func TestScenarioAvoidTurnsTowardOpenSide(t *testing.T) {
	c, logs := newObservedController(t, DefaultControllerConfig(), Pose2D{}, Pose2D{X: 10})
	scan := uniformScan(10, 2.0)
	scan[0] = 0.3
	c.UpdateScan(scan)

	cmd, ok := c.Tick()
	require.True(t, ok)
	assert.Equal(t, 0.1, cmd.Linear)
	assert.Equal(t, -0.5, cmd.Angular, "left is closer, so turn right")

	entries := logs.FilterMessage("obstacle detected").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.InDelta(t, 0.3, fields["min"], 1e-12)
	assert.InDelta(t, 4.3/3, fields["left"], 1e-12)
	assert.InDelta(t, 2.0, fields["right"], 1e-12)
}

func TestScenarioForwardWhenAligned(t *testing.T) {
	c := NewController(DefaultControllerConfig(), Pose2D{}, Pose2D{X: 10, Y: 0, Theta: -math.Pi / 6}, nil)
	c.UpdateScan(uniformScan(10, 0.5))

	d := c.Decide()
	assert.Equal(t, BranchForward, d.Branch)
	assert.Equal(t, VelocityCommand{Linear: 0.2, Angular: 0}, d.Command)
	assert.InDelta(t, 0, d.Goal.AngleDiff, 1e-12)
	assert.InDelta(t, 10, d.Goal.Distance, 1e-12)
}

func TestScenarioHeadingCorrectionUnclamped(t *testing.T) {
	c := NewController(DefaultControllerConfig(), Pose2D{}, Pose2D{X: 10}, nil)
	c.UpdateScan(uniformScan(12, 3))
	c.UpdatePose(PoseSample{Orientation: QuaternionFromYaw(math.Pi / 2)})

	d := c.Decide()
	assert.Equal(t, BranchHeading, d.Branch)
	assert.Equal(t, 0.0, d.Command.Linear)
	assert.InDelta(t, -math.Pi/2, d.Command.Angular, 1e-9)

	// Facing away from the goal yields the full pi yaw rate.
	c.UpdatePose(PoseSample{Orientation: QuaternionFromYaw(math.Pi)})
	d = c.Decide()
	assert.Equal(t, BranchHeading, d.Branch)
	assert.InDelta(t, math.Pi, math.Abs(d.Command.Angular), 1e-9)
}

func TestHeadingGainScalesYawRate(t *testing.T) {
	cfg := DefaultControllerConfig()
	cfg.HeadingGain = 0.5
	st := ControllerState{
		Pose: Pose2D{Theta: math.Pi / 2},
		Scan: uniformScan(6, 5),
		Goal: Pose2D{X: 10},
	}
	d := Evaluate(cfg, st)
	assert.Equal(t, BranchHeading, d.Branch)
	assert.InDelta(t, -math.Pi/4, d.Command.Angular, 1e-9)
}

func TestGoalToleranceBoundary(t *testing.T) {
	cfg := DefaultControllerConfig()
	scan := uniformScan(9, 4)

	d := Evaluate(cfg, ControllerState{Pose: Pose2D{}, Scan: scan, Goal: Pose2D{X: 0.1}})
	require.Equal(t, 0.1, d.Goal.Distance)
	assert.Equal(t, BranchGoalReached, d.Branch)

	d = Evaluate(cfg, ControllerState{Pose: Pose2D{}, Scan: scan, Goal: Pose2D{X: 0.11}})
	assert.Equal(t, BranchForward, d.Branch)
}

func TestAvoidanceOverridesGoalReached(t *testing.T) {
	scan := uniformScan(9, 4)
	scan[8] = 0.2
	d := Evaluate(DefaultControllerConfig(), ControllerState{Scan: scan})
	assert.Equal(t, BranchAvoid, d.Branch)
	assert.Equal(t, 0.5, d.Command.Angular, "right is closer, so turn left")
}

func TestAvoidTieTurnsRight(t *testing.T) {
	scan := RangeScan{0.2, 1, 1, 1, 1, 0.2}
	d := Evaluate(DefaultControllerConfig(), ControllerState{Scan: scan, Goal: Pose2D{X: 5}})
	assert.Equal(t, BranchAvoid, d.Branch)
	assert.Equal(t, d.Sectors.Left, d.Sectors.Right)
	assert.Equal(t, -0.5, d.Command.Angular)
}

func TestAvoidSignMatchesSectorMeans(t *testing.T) {
	cfg := DefaultControllerConfig()
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		n := 3 + rng.Intn(60)
		scan := make(RangeScan, n)
		for j := range scan {
			scan[j] = rng.Float64() * 4
		}
		scan[rng.Intn(n)] = rng.Float64() * 0.49

		var left, right float64
		for _, r := range scan[:n/3] {
			left += r
		}
		for _, r := range scan[2*n/3:] {
			right += r
		}
		left /= float64(n / 3)
		right /= float64(n - 2*n/3)

		d := Evaluate(cfg, ControllerState{Scan: scan, Goal: Pose2D{X: 10}})
		require.Equal(t, BranchAvoid, d.Branch)
		if left > right {
			require.Equal(t, 0.5, d.Command.Angular, "scan %v", scan)
		} else {
			require.Equal(t, -0.5, d.Command.Angular, "scan %v", scan)
		}
	}
}

func TestTickIsIdempotentWithoutNewInput(t *testing.T) {
	c := NewController(DefaultControllerConfig(), Pose2D{}, Pose2D{X: 10, Y: 4}, nil)
	c.UpdateScan(uniformScan(30, 1.5))
	c.UpdatePose(PoseSample{X: 1, Y: 1, Orientation: QuaternionFromYaw(0.2)})

	first, ok1 := c.Tick()
	second, ok2 := c.Tick()
	assert.Equal(t, ok1, ok2)
	assert.Equal(t, first, second)
}

func TestSilentGoalPolicySuppressesPublish(t *testing.T) {
	cfg := DefaultControllerConfig()
	cfg.GoalReached = GoalPolicySilent
	c, logs := newObservedController(t, cfg, Pose2D{}, Pose2D{})
	c.UpdateScan(uniformScan(10, 1))

	for i := 0; i < 2; i++ {
		cmd, ok := c.Tick()
		assert.False(t, ok)
		assert.Equal(t, Stop, cmd)
	}
	assert.Equal(t, 2, logs.FilterMessage("goal reached").Len())
}

func TestNonFiniteReadingsCountAsOpenSpace(t *testing.T) {
	scan := RangeScan{math.NaN(), math.Inf(1), math.NaN(), 0.3, 0.3, 0.3}
	d := Evaluate(DefaultControllerConfig(), ControllerState{Scan: scan, Goal: Pose2D{X: 5}})
	assert.Equal(t, BranchAvoid, d.Branch)
	assert.Equal(t, 0.5, d.Command.Angular)
	assert.Equal(t, DefaultNoReturnDistance, d.Sectors.Left)
}

func TestNegativeReadingsClampToZero(t *testing.T) {
	scan := RangeScan{2, 2, 2, -1, 2, 2}
	d := Evaluate(DefaultControllerConfig(), ControllerState{Scan: scan, Goal: Pose2D{X: 5}})
	assert.Equal(t, BranchAvoid, d.Branch)
	assert.Equal(t, 0.0, d.Sectors.Min)
}

func TestUpdateScanCopiesInput(t *testing.T) {
	c := NewController(DefaultControllerConfig(), Pose2D{}, Pose2D{X: 10}, nil)
	scan := uniformScan(6, 2)
	c.UpdateScan(scan)
	scan[0] = 0.1

	assert.Equal(t, 2.0, c.Snapshot().Scan[0])
	assert.Equal(t, BranchForward, c.Decide().Branch)
}

func TestUpdatePoseOverwritesWholePose(t *testing.T) {
	c := NewController(DefaultControllerConfig(), Pose2D{X: 1, Y: 1, Theta: 1}, Pose2D{X: 10}, nil)
	c.UpdatePose(PoseSample{X: -3, Y: 7, Orientation: QuaternionFromYaw(-2)})

	pose := c.Snapshot().Pose
	assert.Equal(t, -3.0, pose.X)
	assert.Equal(t, 7.0, pose.Y)
	assert.InDelta(t, -2, pose.Theta, 1e-9)
}

func TestConcurrentUpdatesAndTicks(t *testing.T) {
	c := NewController(DefaultControllerConfig(), Pose2D{}, Pose2D{X: 10}, nil)

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			c.UpdateScan(uniformScan(1+i%20, float64(i%5)))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			c.UpdatePose(PoseSample{X: float64(i) / 100, Orientation: QuaternionFromYaw(float64(i) / 50)})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			c.Tick()
		}
	}()
	wg.Wait()
}

func TestBranchString(t *testing.T) {
	assert.Equal(t, "AVOID", BranchAvoid.String())
	assert.Equal(t, "GOAL_REACHED", BranchGoalReached.String())
	assert.Equal(t, "Branch(42)", Branch(42).String())
}
