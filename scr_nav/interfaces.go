package scr_nav

import (
	"fmt"

	"gonum.org/v1/gonum/num/quat"
)

// Pose2D is a planar pose in the fixed world frame.
//
// Theta is in radians and kept normalized to (-pi, pi].
type Pose2D struct {
	X     float64 `json:"x" yaml:"x"`
	Y     float64 `json:"y" yaml:"y"`
	Theta float64 `json:"theta" yaml:"theta"`
}

// PoseSample is a single localization reading.
//
// Orientation is a unit quaternion with Real=w, Imag=x, Jmag=y, Kmag=z.
type PoseSample struct {
	X           float64
	Y           float64
	Orientation quat.Number
}

// RangeScan is an angularly ordered sequence of range readings in meters,
// running from one edge of the sensor field of view to the other.
type RangeScan []float64

// VelocityCommand is the controller output sent to the actuation sink.
type VelocityCommand struct {
	Linear  float64 // m/s, forward
	Angular float64 // rad/s, yaw rate
}

// Stop is the zero-velocity command.
var Stop = VelocityCommand{}

// ControllerState is everything a tick decision depends on.
type ControllerState struct {
	Pose Pose2D
	Scan RangeScan
	Goal Pose2D
}

// Branch identifies which rule produced a decision.
type Branch int

const (
	BranchNoData Branch = iota + 1
	BranchAvoid
	BranchHeading
	BranchForward
	BranchGoalReached
)

func (b Branch) String() string {
	switch b {
	case BranchNoData:
		return "NO_DATA"
	case BranchAvoid:
		return "AVOID"
	case BranchHeading:
		return "HEADING"
	case BranchForward:
		return "FORWARD"
	case BranchGoalReached:
		return "GOAL_REACHED"
	default:
		return fmt.Sprintf("Branch(%d)", int(b))
	}
}

// SectorSummary holds the scan statistics used by the avoidance rule.
type SectorSummary struct {
	Min    float64
	Left   float64
	Center float64
	Right  float64
}

// GoalGeometry is the goal position relative to the current pose.
type GoalGeometry struct {
	DX        float64
	DY        float64
	Distance  float64
	Bearing   float64
	AngleDiff float64
}

// Decision is the full result of one tick evaluation.
//
// Publish is false when the command must not reach the actuation sink.
type Decision struct {
	Branch  Branch
	Command VelocityCommand
	Publish bool
	Sectors SectorSummary
	Goal    GoalGeometry
}
