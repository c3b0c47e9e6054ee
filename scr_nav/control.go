package scr_nav

import (
	"fmt"
	"math"
	"sync"

	"go.uber.org/zap"
)

// GoalReachedPolicy selects whether the stop command is published once the goal is reached.
type GoalReachedPolicy int

const (
	// GoalPolicyStop publishes the stop command on every goal-reached tick.
	GoalPolicyStop GoalReachedPolicy = iota + 1
	// GoalPolicySilent computes and logs the stop command but publishes nothing.
	GoalPolicySilent
)

func (p GoalReachedPolicy) String() string {
	switch p {
	case GoalPolicyStop:
		return "STOP"
	case GoalPolicySilent:
		return "SILENT"
	default:
		return fmt.Sprintf("GoalReachedPolicy(%d)", int(p))
	}
}

// ControllerConfig bundles thresholds, speeds, and gains for the decision rule.
type ControllerConfig struct {
	ObstacleDistance float64 `json:"obstacle_distance" yaml:"obstacle_distance"`
	GoalTolerance    float64 `json:"goal_tolerance" yaml:"goal_tolerance"`
	HeadingTolerance float64 `json:"heading_tolerance" yaml:"heading_tolerance"`

	AvoidLinear  float64 `json:"avoid_linear" yaml:"avoid_linear"`
	AvoidAngular float64 `json:"avoid_angular" yaml:"avoid_angular"`
	CruiseLinear float64 `json:"cruise_linear" yaml:"cruise_linear"`

	// HeadingGain scales the heading error into a yaw rate. The result is not clamped.
	HeadingGain float64 `json:"heading_gain" yaml:"heading_gain"`

	NoReturnDistance float64           `json:"no_return_distance" yaml:"no_return_distance"`
	GoalReached      GoalReachedPolicy `json:"goal_reached" yaml:"goal_reached"`
}

// DefaultControllerConfig returns the reference tuning.
func DefaultControllerConfig() ControllerConfig {
	return ControllerConfig{
		ObstacleDistance: 0.5,
		GoalTolerance:    0.1,
		HeadingTolerance: 0.1,
		AvoidLinear:      0.1,
		AvoidAngular:     0.5,
		CruiseLinear:     0.2,
		HeadingGain:      1.0,
		NoReturnDistance: DefaultNoReturnDistance,
		GoalReached:      GoalPolicyStop,
	}
}

// Evaluate computes the decision for one tick from a state snapshot.
// It has no side effects.
func Evaluate(cfg ControllerConfig, st ControllerState) Decision {
	if len(st.Scan) == 0 {
		return Decision{Branch: BranchNoData}
	}

	geom := ComputeGoalGeometry(st.Pose, st.Goal)
	sectors := SummarizeSectors(SanitizeScan(st.Scan, cfg.NoReturnDistance))
	d := Decision{Sectors: sectors, Goal: geom, Publish: true}

	switch {
	case sectors.Min < cfg.ObstacleDistance:
		d.Branch = BranchAvoid
		d.Command.Linear = cfg.AvoidLinear
		if sectors.Left > sectors.Right {
			d.Command.Angular = cfg.AvoidAngular
		} else {
			d.Command.Angular = -cfg.AvoidAngular
		}
	case geom.Distance > cfg.GoalTolerance && math.Abs(geom.AngleDiff) > cfg.HeadingTolerance:
		d.Branch = BranchHeading
		d.Command = VelocityCommand{Linear: 0, Angular: cfg.HeadingGain * geom.AngleDiff}
	case geom.Distance > cfg.GoalTolerance:
		d.Branch = BranchForward
		d.Command = VelocityCommand{Linear: cfg.CruiseLinear, Angular: 0}
	default:
		d.Branch = BranchGoalReached
		d.Command = Stop
		d.Publish = cfg.GoalReached != GoalPolicySilent
	}
	return d
}

// Controller owns the controller state and serializes updates against ticks.
type Controller struct {
	Cfg    ControllerConfig
	logger *zap.Logger

	mu    sync.RWMutex
	state ControllerState
}

// NewController constructs a controller with an empty scan.
func NewController(cfg ControllerConfig, initial, goal Pose2D, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	initial.Theta = NormalizeAngle(initial.Theta)
	goal.Theta = NormalizeAngle(goal.Theta)
	return &Controller{
		Cfg:    cfg,
		logger: logger.Named("controller"),
		state:  ControllerState{Pose: initial, Goal: goal},
	}
}

// UpdateScan replaces the latest scan with a copy of scan.
func (c *Controller) UpdateScan(scan RangeScan) {
	cp := make(RangeScan, len(scan))
	copy(cp, scan)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Scan = cp
}

// UpdatePose overwrites the current pose from a localization sample.
func (c *Controller) UpdatePose(sample PoseSample) {
	pose := PoseFromSample(sample)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Pose = pose
}

// Snapshot returns a copy of the current state.
// The scan slice is shared but never mutated after it is stored.
func (c *Controller) Snapshot() ControllerState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Decide evaluates the current state and logs the diagnostics for the chosen branch.
func (c *Controller) Decide() Decision {
	_, d := c.DecideState()
	return d
}

// DecideState is Decide that also returns the snapshot the decision was made from.
func (c *Controller) DecideState() (ControllerState, Decision) {
	st := c.Snapshot()
	d := Evaluate(c.Cfg, st)
	c.logDecision(d)
	return st, d
}

func (c *Controller) logDecision(d Decision) {
	switch d.Branch {
	case BranchNoData:
		c.logger.Warn("no sensor data yet")
	case BranchAvoid:
		c.logger.Info("obstacle detected",
			zap.Float64("min", d.Sectors.Min),
			zap.Float64("left", d.Sectors.Left),
			zap.Float64("center", d.Sectors.Center),
			zap.Float64("right", d.Sectors.Right),
		)
	case BranchGoalReached:
		c.logger.Info("goal reached",
			zap.Float64("distance", d.Goal.Distance),
			zap.Stringer("policy", c.Cfg.GoalReached),
		)
	}
}

// Tick returns the command for this period, or false when nothing should be published.
func (c *Controller) Tick() (VelocityCommand, bool) {
	d := c.Decide()
	return d.Command, d.Publish
}
