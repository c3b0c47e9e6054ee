package scr_nav

import (
	"context"
	"encoding/json"
	"math"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/num/quat"
)

// Inputs receives perception and localization updates.
type Inputs interface {
	UpdateScan(scan RangeScan)
	UpdatePose(sample PoseSample)
}

const (
	laserScanType = "sensor_msgs/LaserScan"
	poseType      = "geometry_msgs/Pose"
	twistType     = "geometry_msgs/Twist"
)

// rosbridgeOp is an outgoing rosbridge v2 operation.
type rosbridgeOp struct {
	Op    string `json:"op"`
	Topic string `json:"topic"`
	Type  string `json:"type,omitempty"`
	Msg   any    `json:"msg,omitempty"`
}

// rosbridgeFrame is an incoming rosbridge v2 operation.
type rosbridgeFrame struct {
	Op    string          `json:"op"`
	Topic string          `json:"topic"`
	Msg   json.RawMessage `json:"msg"`
}

type vector3Msg struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

type quaternionMsg struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

type poseMsg struct {
	Position    vector3Msg    `json:"position"`
	Orientation quaternionMsg `json:"orientation"`
}

type twistMsg struct {
	Linear  vector3Msg `json:"linear"`
	Angular vector3Msg `json:"angular"`
}

// laserScanMsg keeps only the fields the controller uses. rosbridge encodes
// non-finite ranges as null.
type laserScanMsg struct {
	AngleMin float64    `json:"angle_min"`
	AngleMax float64    `json:"angle_max"`
	RangeMin float64    `json:"range_min"`
	RangeMax float64    `json:"range_max"`
	Ranges   []*float64 `json:"ranges"`
}

// twistFromCommand maps a planar command onto a body-frame twist.
func twistFromCommand(cmd VelocityCommand) twistMsg {
	return twistMsg{
		Linear:  vector3Msg{X: cmd.Linear},
		Angular: vector3Msg{Z: cmd.Angular},
	}
}

func (m laserScanMsg) rangeScan() RangeScan {
	scan := make(RangeScan, len(m.Ranges))
	for i, r := range m.Ranges {
		if r == nil {
			scan[i] = math.Inf(1)
			continue
		}
		scan[i] = *r
	}
	return scan
}

func (m poseMsg) sample() PoseSample {
	return PoseSample{
		X: m.Position.X,
		Y: m.Position.Y,
		Orientation: quat.Number{
			Real: m.Orientation.W,
			Imag: m.Orientation.X,
			Jmag: m.Orientation.Y,
			Kmag: m.Orientation.Z,
		},
	}
}

// RosbridgeClient connects to a rosbridge server, feeds laser and pose topics
// into Inputs, and publishes velocity commands as twists.
type RosbridgeClient struct {
	cfg    RosbridgeConfig
	inputs Inputs
	feeds  *FeedMonitor
	logger *zap.Logger
	clock  clock.Clock

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewRosbridgeClient constructs a client. Run must be called to connect.
func NewRosbridgeClient(cfg RosbridgeConfig, inputs Inputs, feeds *FeedMonitor, logger *zap.Logger, clk clock.Clock) *RosbridgeClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clk == nil {
		clk = clock.New()
	}
	return &RosbridgeClient{
		cfg:    cfg,
		inputs: inputs,
		feeds:  feeds,
		logger: logger.Named("rosbridge"),
		clock:  clk,
	}
}

// Run keeps a session open until ctx is done, reconnecting after failures.
func (c *RosbridgeClient) Run(ctx context.Context) error {
	delay := c.cfg.GetReconnectDelay()
	for {
		err := c.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		c.logger.Warn("rosbridge session ended", zap.Error(err), zap.Duration("retry_in", delay))
		select {
		case <-ctx.Done():
			return nil
		case <-c.clock.After(delay):
		}
	}
}

func (c *RosbridgeClient) session(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return errors.Wrapf(err, "dial rosbridge %q", c.cfg.URL)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	c.setConn(conn)
	defer c.setConn(nil)

	ops := []rosbridgeOp{
		{Op: "subscribe", Topic: c.cfg.LaserTopic, Type: laserScanType},
		{Op: "subscribe", Topic: c.cfg.PoseTopic, Type: poseType},
		{Op: "advertise", Topic: c.cfg.CmdVelTopic, Type: twistType},
	}
	for _, op := range ops {
		if err := c.write(op); err != nil {
			return err
		}
	}
	c.logger.Info("rosbridge connected", zap.String("url", c.cfg.URL))

	for {
		var frame rosbridgeFrame
		if err := conn.ReadJSON(&frame); err != nil {
			return errors.Wrap(err, "read rosbridge frame")
		}
		c.dispatch(frame)
	}
}

// dispatch applies one incoming publish frame. Unknown topics are ignored.
func (c *RosbridgeClient) dispatch(frame rosbridgeFrame) {
	if frame.Op != "publish" {
		return
	}
	switch frame.Topic {
	case c.cfg.LaserTopic:
		var msg laserScanMsg
		if err := json.Unmarshal(frame.Msg, &msg); err != nil {
			c.feeds.Dropped(FeedScan)
			c.logger.Debug("bad laser message", zap.Error(err))
			return
		}
		c.inputs.UpdateScan(msg.rangeScan())
		c.feeds.Accepted(FeedScan)
	case c.cfg.PoseTopic:
		var msg poseMsg
		if err := json.Unmarshal(frame.Msg, &msg); err != nil {
			c.feeds.Dropped(FeedPose)
			c.logger.Debug("bad pose message", zap.Error(err))
			return
		}
		c.inputs.UpdatePose(msg.sample())
		c.feeds.Accepted(FeedPose)
	}
}

func (c *RosbridgeClient) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn = conn
}

// Connected reports whether a session is currently open.
func (c *RosbridgeClient) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

func (c *RosbridgeClient) write(op rosbridgeOp) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return errors.New("rosbridge not connected")
	}
	return errors.Wrapf(c.conn.WriteJSON(op), "write %s %s", op.Op, op.Topic)
}

// Send publishes cmd on the command topic.
func (c *RosbridgeClient) Send(cmd VelocityCommand) error {
	return c.write(rosbridgeOp{Op: "publish", Topic: c.cfg.CmdVelTopic, Msg: twistFromCommand(cmd)})
}

// Close is a no-op; the session closes when the Run context ends.
func (c *RosbridgeClient) Close() error {
	return nil
}
