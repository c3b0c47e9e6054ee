package scr_nav

import (
	"context"
	"net"
	"strconv"
	"strings"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// inputRunner is an input feed that pushes updates until its context ends.
type inputRunner interface {
	Run(ctx context.Context) error
}

// Live wires the controller to its feeds, sinks, and diagnostics and ticks it
// at a fixed rate.
type Live struct {
	cfg        AppConfig
	logger     *zap.Logger
	clock      clock.Clock
	controller *Controller
	feeds      *FeedMonitor

	sink    MultiSink
	inputs  []inputRunner
	udp     *UDPListener
	journal *Journal
	viz     *VizMetrics
}

// LiveOption customizes a Live runner.
type LiveOption func(*Live)

// WithClock replaces the wall clock driving the tick loop.
func WithClock(clk clock.Clock) LiveOption {
	return func(l *Live) { l.clock = clk }
}

// WithSink adds an extra actuation sink.
func WithSink(s CommandSink) LiveOption {
	return func(l *Live) { l.sink = append(l.sink, s) }
}

// NewLive builds the controller and every configured input and output.
func NewLive(cfg AppConfig, logger *zap.Logger, opts ...LiveOption) (_ *Live, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	l := &Live{cfg: cfg, logger: logger.Named("live"), clock: clock.New()}
	for _, opt := range opts {
		opt(l)
	}
	defer func() {
		if err != nil {
			err = multierr.Append(err, l.Close())
		}
	}()

	l.feeds = NewFeedMonitor(l.clock)
	l.controller = NewController(cfg.Controller, cfg.InitialPose, cfg.Goal, logger)

	if cfg.Output.UDPAddr != "" {
		sender, err := NewOutputSender(cfg.Output.UDPAddr)
		if err != nil {
			return nil, err
		}
		l.sink = append(l.sink, sender)
	}
	if cfg.Serial.Port != "" {
		sender, err := NewSerialSender(cfg.Serial)
		if err != nil {
			return nil, err
		}
		l.sink = append(l.sink, sender)
	}
	if cfg.Rosbridge.URL != "" {
		rb := NewRosbridgeClient(cfg.Rosbridge, l.controller, l.feeds, logger, l.clock)
		l.inputs = append(l.inputs, rb)
		l.sink = append(l.sink, rb)
	}
	if cfg.Live.UDPAddr != "" {
		l.udp, err = ListenUDP(cfg.Live, l.controller, l.feeds, logger)
		if err != nil {
			return nil, err
		}
		l.inputs = append(l.inputs, l.udp)
	}
	if cfg.Journal.Path != "" {
		l.journal, err = OpenJournal(cfg.Journal.Path)
		if err != nil {
			return nil, err
		}
		l.logger.Info("journal opened", zap.String("path", cfg.Journal.Path), zap.String("run_id", l.journal.RunID()))
	}
	l.viz, err = StartViz(cfg.Viz, logger)
	if err != nil {
		return nil, err
	}
	if len(l.sink) == 0 {
		l.logger.Warn("no actuation sink configured, commands are only logged")
	}
	return l, nil
}

// Controller returns the controller driven by this runner.
func (l *Live) Controller() *Controller { return l.controller }

// Feeds returns the input feed monitor.
func (l *Live) Feeds() *FeedMonitor { return l.feeds }

// Journal returns the decision journal, or nil when disabled.
func (l *Live) Journal() *Journal { return l.journal }

// UDPAddr returns the bound address of the UDP input, or nil when disabled.
func (l *Live) UDPAddr() net.Addr {
	if l.udp == nil {
		return nil
	}
	return l.udp.Addr()
}

// Run ticks the controller until ctx is done, then sends a stop command.
// Inputs keep running until the stop has been sent so that a rosbridge
// session can still deliver it.
func (l *Live) Run(ctx context.Context) error {
	inputCtx, cancelInputs := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelInputs()

	g, gctx := errgroup.WithContext(inputCtx)
	for _, in := range l.inputs {
		in := in
		g.Go(func() error { return in.Run(gctx) })
	}

	l.logger.Info("control loop started",
		zap.Duration("period", l.cfg.Period()),
		zap.Float64("goal_x", l.cfg.Goal.X),
		zap.Float64("goal_y", l.cfg.Goal.Y),
	)

	ticker := l.clock.Ticker(l.cfg.Period())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			l.stop()
			cancelInputs()
			return g.Wait()
		case <-ticker.C:
			l.Step()
		}
	}
}

// Step runs one control tick: decide, publish, and record.
func (l *Live) Step() Decision {
	st, d := l.controller.DecideState()
	if d.Publish {
		if err := l.sink.Send(d.Command); err != nil {
			l.logger.Warn("send command failed", zap.Error(err))
		}
	}

	l.viz.UpdateInput(st, d, l.feeds)
	l.viz.UpdateOutput(d)
	if err := l.journal.Record(l.clock.Now(), st, d); err != nil {
		l.logger.Warn("journal write failed", zap.Error(err))
	}

	if l.cfg.Log.Verbose {
		l.logger.Debug("tick",
			zap.Stringer("branch", d.Branch),
			zap.Float64("pose_x", st.Pose.X),
			zap.Float64("pose_y", st.Pose.Y),
			zap.Float64("pose_theta", st.Pose.Theta),
			zap.Int("scan_len", len(st.Scan)),
			zap.Duration("scan_age", l.feeds.Age(FeedScan)),
			zap.Duration("pose_age", l.feeds.Age(FeedPose)),
			zap.Float64("distance", d.Goal.Distance),
			zap.Float64("angle_diff", d.Goal.AngleDiff),
			zap.Float64("linear", d.Command.Linear),
			zap.Float64("angular", d.Command.Angular),
			zap.Bool("published", d.Publish),
		)
	}
	return d
}

// stop sends the zero-velocity command on shutdown.
func (l *Live) stop() {
	if err := l.sink.Send(Stop); err != nil {
		l.logger.Warn("send shutdown stop failed", zap.Error(err))
		return
	}
	l.logger.Info("control loop stopped, stop command sent")
}

// Close releases sinks, inputs, the journal, and the viz server.
func (l *Live) Close() error {
	var err error
	err = multierr.Append(err, l.sink.Close())
	err = multierr.Append(err, l.udp.Close())
	err = multierr.Append(err, l.journal.Close())
	err = multierr.Append(err, l.viz.Close())
	return err
}

// RunLive starts the feed-to-actuator control loop and blocks until ctx is done.
func RunLive(ctx context.Context, cfg AppConfig, logger *zap.Logger) error {
	l, err := NewLive(cfg, logger)
	if err != nil {
		return err
	}
	return multierr.Append(l.Run(ctx), l.Close())
}

// UDPListener receives scan and pose packets as CSV datagrams.
type UDPListener struct {
	conn    *net.UDPConn
	inputs  Inputs
	feeds   *FeedMonitor
	logger  *zap.Logger
	bufSize int
}

// ListenUDP binds the live input socket.
func ListenUDP(cfg LiveConfig, inputs Inputs, feeds *FeedMonitor, logger *zap.Logger) (*UDPListener, error) {
	addr, err := net.ResolveUDPAddr("udp", cfg.UDPAddr)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve live addr %q", cfg.UDPAddr)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listen live addr %q", cfg.UDPAddr)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	bufSize := cfg.ReadBuffer
	if bufSize <= 0 {
		bufSize = 65536
	}
	return &UDPListener{
		conn:    conn,
		inputs:  inputs,
		feeds:   feeds,
		logger:  logger.Named("udp"),
		bufSize: bufSize,
	}, nil
}

// Addr returns the bound local address.
func (u *UDPListener) Addr() net.Addr {
	return u.conn.LocalAddr()
}

// Run reads packets until ctx is done or the socket is closed.
func (u *UDPListener) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = u.conn.Close() })
	defer stop()

	buf := make([]byte, u.bufSize)
	for {
		n, _, err := u.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			u.logger.Debug("udp read failed", zap.Error(err))
			continue
		}
		u.handle(buf[:n])
	}
}

func (u *UDPListener) handle(b []byte) {
	pkt, err := parseLivePacket(b)
	if err != nil {
		if pkt.feed != "" {
			u.feeds.Dropped(pkt.feed)
		}
		u.logger.Debug("dropping packet", zap.Error(err))
		return
	}
	switch pkt.feed {
	case FeedScan:
		u.inputs.UpdateScan(pkt.scan)
	case FeedPose:
		u.inputs.UpdatePose(pkt.pose)
	}
	u.feeds.Accepted(pkt.feed)
}

// Close releases the socket.
func (u *UDPListener) Close() error {
	if u == nil {
		return nil
	}
	if err := u.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

// livePacket is one parsed input datagram.
type livePacket struct {
	feed string
	scan RangeScan
	pose PoseSample
}

// parseLivePacket parses CSV payloads:
//
//	scan,<r0>,<r1>,...
//	pose,<x>,<y>,<qw>,<qx>,<qy>,<qz>
//	pose,<x>,<y>,<yaw>
//
// The returned packet carries the feed name even on error when the tag was recognized.
func parseLivePacket(b []byte) (livePacket, error) {
	s := strings.TrimSpace(string(b))
	if s == "" {
		return livePacket{}, errors.New("empty payload")
	}

	parts := strings.Split(s, ",")
	tag := strings.ToLower(strings.TrimSpace(parts[0]))
	vals := make([]float64, 0, len(parts)-1)
	for _, p := range parts[1:] {
		f, err := parseF64(p)
		if err != nil {
			return livePacket{feed: feedForTag(tag)}, errors.Wrapf(err, "parse %s field", tag)
		}
		vals = append(vals, f)
	}

	switch tag {
	case FeedScan:
		return livePacket{feed: FeedScan, scan: RangeScan(vals)}, nil
	case FeedPose:
		switch len(vals) {
		case 3:
			return livePacket{feed: FeedPose, pose: PoseSample{
				X: vals[0], Y: vals[1], Orientation: QuaternionFromYaw(vals[2]),
			}}, nil
		case 6:
			sample := PoseSample{X: vals[0], Y: vals[1]}
			sample.Orientation.Real = vals[2]
			sample.Orientation.Imag = vals[3]
			sample.Orientation.Jmag = vals[4]
			sample.Orientation.Kmag = vals[5]
			return livePacket{feed: FeedPose, pose: sample}, nil
		default:
			return livePacket{feed: FeedPose}, errors.Errorf("expected 3 or 6 pose fields, got %d", len(vals))
		}
	default:
		return livePacket{}, errors.Errorf("unknown packet tag %q", tag)
	}
}

func feedForTag(tag string) string {
	switch tag {
	case FeedScan, FeedPose:
		return tag
	default:
		return ""
	}
}

// parseF64 parses a float from a CSV field.
func parseF64(value string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(value), 64)
}
