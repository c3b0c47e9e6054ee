package scr_nav

import (
	"context"
	"expvar"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// VizConfig controls the optional expvar endpoint used for live plotting.
type VizConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

// VizMetrics exposes live input/output values via expvar.
type VizMetrics struct {
	input  *expvar.Map
	output *expvar.Map
	flat   map[string]*expvar.Float
	server *http.Server
	addr   net.Addr
}

var vizInputKeys = []string{"pose_x", "pose_y", "pose_theta", "min", "left", "center", "right", "scan_age", "pose_age"}
var vizOutputKeys = []string{"linear", "angular", "branch", "published"}

// publishedMap returns the expvar map called name, creating it on first use.
func publishedMap(name string) *expvar.Map {
	if v, ok := expvar.Get(name).(*expvar.Map); ok {
		return v
	}
	return expvar.NewMap(name)
}

// publishedFloat returns the expvar float called name, creating it on first use.
func publishedFloat(name string) *expvar.Float {
	if v, ok := expvar.Get(name).(*expvar.Float); ok {
		return v
	}
	return expvar.NewFloat(name)
}

// StartViz starts an HTTP server exposing /debug/vars for plotting.
// It returns nil metrics when viz is disabled; all methods accept a nil receiver.
func StartViz(cfg VizConfig, logger *zap.Logger) (*VizMetrics, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:7070"
	}

	metrics := &VizMetrics{
		input:  publishedMap("scr_input"),
		output: publishedMap("scr_output"),
		flat:   map[string]*expvar.Float{},
	}
	for _, k := range vizInputKeys {
		metrics.input.Set(k, new(expvar.Float))
		metrics.flat["input_"+k] = publishedFloat("input_" + k)
	}
	for _, k := range vizOutputKeys {
		metrics.output.Set(k, new(expvar.Float))
		metrics.flat["output_"+k] = publishedFloat("output_" + k)
	}

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listen viz addr %q", cfg.Addr)
	}
	mux := http.NewServeMux()
	mux.Handle("/debug/vars", expvar.Handler())
	metrics.server = &http.Server{Handler: mux}
	metrics.addr = ln.Addr()

	go func() {
		if err := metrics.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			logger.Error("viz server error", zap.Error(err))
		}
	}()

	return metrics, nil
}

// Addr returns the address the viz server listens on.
func (v *VizMetrics) Addr() net.Addr {
	if v == nil {
		return nil
	}
	return v.addr
}

// Close stops the HTTP server.
func (v *VizMetrics) Close() error {
	if v == nil || v.server == nil {
		return nil
	}
	return v.server.Shutdown(context.Background())
}

// UpdateInput publishes the latest pose, sector statistics, and feed ages.
func (v *VizMetrics) UpdateInput(st ControllerState, d Decision, feeds *FeedMonitor) {
	if v == nil {
		return
	}
	values := map[string]float64{
		"pose_x":     st.Pose.X,
		"pose_y":     st.Pose.Y,
		"pose_theta": st.Pose.Theta,
		"min":        d.Sectors.Min,
		"left":       d.Sectors.Left,
		"center":     d.Sectors.Center,
		"right":      d.Sectors.Right,
		"scan_age":   ageSeconds(feeds.Age(FeedScan)),
		"pose_age":   ageSeconds(feeds.Age(FeedPose)),
	}
	for k, val := range values {
		setFloat(v.input, k, val)
		setFlat(v.flat, "input_"+k, val)
	}
}

// UpdateOutput publishes the latest controller output values.
func (v *VizMetrics) UpdateOutput(d Decision) {
	if v == nil {
		return
	}
	published := 0.0
	if d.Publish {
		published = 1
	}
	values := map[string]float64{
		"linear":    d.Command.Linear,
		"angular":   d.Command.Angular,
		"branch":    float64(d.Branch),
		"published": published,
	}
	for k, val := range values {
		setFloat(v.output, k, val)
		setFlat(v.flat, "output_"+k, val)
	}
}

// ageSeconds reports a feed age in seconds, or -1 when the feed never delivered.
func ageSeconds(age time.Duration) float64 {
	if age < 0 {
		return -1
	}
	return age.Seconds()
}

// setFloat updates an expvar.Float stored inside a map.
func setFloat(m *expvar.Map, key string, value float64) {
	if v := m.Get(key); v != nil {
		if f, ok := v.(*expvar.Float); ok {
			f.Set(value)
			return
		}
	}
	f := new(expvar.Float)
	f.Set(value)
	m.Set(key, f)
}

func setFlat(vars map[string]*expvar.Float, key string, value float64) {
	if v, ok := vars[key]; ok {
		v.Set(value)
	}
}
