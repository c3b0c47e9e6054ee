package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"scr-navigation/scr_nav"
)

const (
	flagConfig       = "config"
	flagLiveAddr     = "live-addr"
	flagOutputAddr   = "output-addr"
	flagSerialPort   = "serial-port"
	flagRosbridgeURL = "rosbridge-url"
	flagGoal         = "goal"
	flagInitialPose  = "initial-pose"
	flagGoalPolicy   = "goal-policy"
	flagJournal      = "journal"
	flagLogLevel     = "log-level"
	flagVerbose      = "verbose"
)

func main() {
	app := &cli.App{
		Name:  "scr",
		Usage: "reactive obstacle-avoiding go-to-goal controller",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Value:   "config.testing.json",
				Usage:   "load configuration from `FILE` (.json, .yaml)",
			},
			&cli.StringFlag{Name: flagLiveAddr, Usage: "override live UDP listen addr (host:port)"},
			&cli.StringFlag{Name: flagOutputAddr, Usage: "override output UDP addr (host:port)"},
			&cli.StringFlag{Name: flagSerialPort, Usage: "override serial port for commands"},
			&cli.StringFlag{Name: flagRosbridgeURL, Usage: "override rosbridge websocket URL"},
			&cli.StringFlag{Name: flagGoal, Usage: "override goal pose as `x,y[,theta]`"},
			&cli.StringFlag{Name: flagInitialPose, Usage: "override initial pose as `x,y[,theta]`"},
			&cli.StringFlag{Name: flagGoalPolicy, Usage: "goal reached policy: stop or silent"},
			&cli.StringFlag{Name: flagJournal, Usage: "record decisions to sqlite `FILE`"},
			&cli.StringFlag{Name: flagLogLevel, Usage: "log level (debug, info, warn, error)"},
			&cli.BoolFlag{Name: flagVerbose, Usage: "log every tick at debug level"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}

	logger, err := scr_nav.NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting", zap.String("config", c.String(flagConfig)))
	return scr_nav.RunLive(ctx, cfg, logger)
}

// loadConfig reads the config file when given and applies flag overrides.
func loadConfig(c *cli.Context) (scr_nav.AppConfig, error) {
	cfg := scr_nav.DefaultAppConfig()
	if path := c.String(flagConfig); path != "" {
		loaded, err := scr_nav.LoadConfig(path)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}

	if v := c.String(flagLiveAddr); v != "" {
		cfg.Live.UDPAddr = v
	}
	if v := c.String(flagOutputAddr); v != "" {
		cfg.Output.UDPAddr = v
	}
	if v := c.String(flagSerialPort); v != "" {
		cfg.Serial.Port = v
	}
	if v := c.String(flagRosbridgeURL); v != "" {
		cfg.Rosbridge.URL = v
	}
	if v := c.String(flagGoal); v != "" {
		goal, err := scr_nav.ParsePose(v)
		if err != nil {
			return cfg, errors.Wrapf(err, "invalid goal %q", v)
		}
		cfg.Goal = goal
	}
	if v := c.String(flagInitialPose); v != "" {
		pose, err := scr_nav.ParsePose(v)
		if err != nil {
			return cfg, errors.Wrapf(err, "invalid initial pose %q", v)
		}
		cfg.InitialPose = pose
	}
	if v := c.String(flagGoalPolicy); v != "" {
		policy, err := scr_nav.ParseGoalReachedPolicy(v)
		if err != nil {
			return cfg, err
		}
		cfg.Controller.GoalReached = policy
	}
	if v := c.String(flagJournal); v != "" {
		cfg.Journal.Path = v
	}
	if v := c.String(flagLogLevel); v != "" {
		cfg.Log.Level = v
	}
	if c.Bool(flagVerbose) {
		cfg.Log.Verbose = true
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}
