package scr_nav

import (
	"bytes"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// LiveConfig controls the UDP input for scan and pose packets.
type LiveConfig struct {
	UDPAddr    string `json:"udp_addr" yaml:"udp_addr"`
	ReadBuffer int    `json:"read_buffer" yaml:"read_buffer"`
}

// OutputConfig controls the UDP output for velocity commands.
type OutputConfig struct {
	UDPAddr string `json:"udp_addr" yaml:"udp_addr"`
}

// RosbridgeConfig controls the rosbridge websocket client.
type RosbridgeConfig struct {
	URL            string `json:"url" yaml:"url"`
	LaserTopic     string `json:"laser_topic" yaml:"laser_topic"`
	PoseTopic      string `json:"pose_topic" yaml:"pose_topic"`
	CmdVelTopic    string `json:"cmd_vel_topic" yaml:"cmd_vel_topic"`
	ReconnectDelay string `json:"reconnect_delay" yaml:"reconnect_delay"` // duration string like "2s"
}

// GetReconnectDelay parses ReconnectDelay, falling back to two seconds.
func (c RosbridgeConfig) GetReconnectDelay() time.Duration {
	d, err := time.ParseDuration(c.ReconnectDelay)
	if err != nil || d <= 0 {
		return 2 * time.Second
	}
	return d
}

// JournalConfig controls the sqlite decision journal.
type JournalConfig struct {
	Path string `json:"path" yaml:"path"`
}

// AppConfig aggregates all configuration sections.
type AppConfig struct {
	Hz          float64          `json:"hz" yaml:"hz"`
	Goal        Pose2D           `json:"goal" yaml:"goal"`
	InitialPose Pose2D           `json:"initial_pose" yaml:"initial_pose"`
	Controller  ControllerConfig `json:"controller" yaml:"controller"`
	Live        LiveConfig       `json:"live" yaml:"live"`
	Output      OutputConfig     `json:"output" yaml:"output"`
	Serial      SerialConfig     `json:"serial" yaml:"serial"`
	Rosbridge   RosbridgeConfig  `json:"rosbridge" yaml:"rosbridge"`
	Journal     JournalConfig    `json:"journal" yaml:"journal"`
	Viz         VizConfig        `json:"viz" yaml:"viz"`
	Log         LogConfig        `json:"log" yaml:"log"`
}

// DefaultAppConfig returns the reference setup: goal at (10, 0, -pi/6),
// starting from (0, 0, pi/6), ticking at 10 Hz.
func DefaultAppConfig() AppConfig {
	return AppConfig{
		Hz:          10,
		Goal:        Pose2D{X: 10, Y: 0, Theta: -math.Pi / 6},
		InitialPose: Pose2D{X: 0, Y: 0, Theta: math.Pi / 6},
		Controller:  DefaultControllerConfig(),
		Live:        LiveConfig{ReadBuffer: 65536},
		Rosbridge: RosbridgeConfig{
			LaserTopic:     "/laser",
			PoseTopic:      "/pose",
			CmdVelTopic:    "/cmd_vel",
			ReconnectDelay: "2s",
		},
		Viz: VizConfig{Addr: "127.0.0.1:7070"},
		Log: LogConfig{Level: "info", Encoding: "console", MaxSizeMB: 100, MaxBackups: 3},
	}
}

// Period returns the tick period derived from Hz.
func (c AppConfig) Period() time.Duration {
	return time.Duration(float64(time.Second) / c.Hz)
}

// LoadConfig reads a JSON or YAML config from disk on top of DefaultAppConfig.
// Keys missing from the file keep their default values. The result is not
// validated; callers apply overrides first and then call Validate.
func LoadConfig(path string) (AppConfig, error) {
	cfg := DefaultAppConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "read config %q", path)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return cfg, errors.Wrapf(err, "parse yaml config %q", path)
		}
	case ".json", "":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			return cfg, errors.Wrapf(err, "parse json config %q", path)
		}
	default:
		return cfg, errors.Errorf("unsupported config extension %q", ext)
	}
	return cfg, nil
}

// Validate checks that the configuration can drive a live run.
func (c AppConfig) Validate() error {
	if !(c.Hz > 0) {
		return errors.New("hz must be > 0")
	}
	if c.Period() < time.Nanosecond {
		return errors.Errorf("hz %g is too high: tick period is below 1ns", c.Hz)
	}
	ctl := c.Controller
	if ctl.ObstacleDistance <= 0 {
		return errors.Errorf("controller.obstacle_distance must be > 0, got %g", ctl.ObstacleDistance)
	}
	if ctl.GoalTolerance < 0 {
		return errors.Errorf("controller.goal_tolerance must be >= 0, got %g", ctl.GoalTolerance)
	}
	if ctl.HeadingTolerance < 0 {
		return errors.Errorf("controller.heading_tolerance must be >= 0, got %g", ctl.HeadingTolerance)
	}
	if ctl.NoReturnDistance <= ctl.ObstacleDistance {
		return errors.Errorf("controller.no_return_distance must exceed obstacle_distance, got %g", ctl.NoReturnDistance)
	}
	if ctl.GoalReached != GoalPolicyStop && ctl.GoalReached != GoalPolicySilent {
		return errors.Errorf("controller.goal_reached is invalid: %v", ctl.GoalReached)
	}
	if c.Live.UDPAddr == "" && c.Rosbridge.URL == "" {
		return errors.New("one of live.udp_addr or rosbridge.url must be set")
	}
	if c.Rosbridge.ReconnectDelay != "" {
		if _, err := time.ParseDuration(c.Rosbridge.ReconnectDelay); err != nil {
			return errors.Wrapf(err, "invalid rosbridge.reconnect_delay %q", c.Rosbridge.ReconnectDelay)
		}
	}
	if c.Serial.Port != "" {
		if _, err := c.Serial.Normalize(); err != nil {
			return errors.Wrap(err, "serial")
		}
	}
	if _, err := ParseLogLevel(c.Log.Level); err != nil {
		return errors.Wrap(err, "log.level")
	}
	return nil
}

// ParsePose parses "x,y" or "x,y,theta" (theta in radians).
func ParsePose(value string) (Pose2D, error) {
	parts := strings.Split(strings.TrimSpace(value), ",")
	if len(parts) != 2 && len(parts) != 3 {
		return Pose2D{}, errors.Errorf("expected x,y[,theta], got %q", value)
	}
	vals := make([]float64, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return Pose2D{}, errors.Wrapf(err, "pose field %d", i)
		}
		vals[i] = f
	}
	pose := Pose2D{X: vals[0], Y: vals[1]}
	if len(vals) == 3 {
		pose.Theta = NormalizeAngle(vals[2])
	}
	return pose, nil
}

// ParseGoalReachedPolicy converts a policy name into a GoalReachedPolicy.
func ParseGoalReachedPolicy(value string) (GoalReachedPolicy, error) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "STOP":
		return GoalPolicyStop, nil
	case "SILENT":
		return GoalPolicySilent, nil
	default:
		return GoalPolicyStop, errors.Errorf("unknown goal reached policy %q", value)
	}
}

// UnmarshalJSON allows policies to be loaded from JSON strings.
func (p *GoalReachedPolicy) UnmarshalJSON(b []byte) error {
	var raw *string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if raw == nil {
		return nil
	}
	parsed, err := ParseGoalReachedPolicy(*raw)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// MarshalJSON writes the policy name.
func (p GoalReachedPolicy) MarshalJSON() ([]byte, error) {
	return json.Marshal(strings.ToLower(p.String()))
}

// UnmarshalYAML allows policies to be loaded from YAML strings.
func (p *GoalReachedPolicy) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := ParseGoalReachedPolicy(raw)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
