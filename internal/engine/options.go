package engine

import (
	"os"
	"strconv"
	"time"

	"galleria/internal/config"
)

// Options configures the engine process.
type Options struct {
	Binary              string
	Port                int
	Concurrent          int
	Split               int
	SpeedLimit          string
	OverallSpeedLimit   string
	DiskCache           string
	LogLevel            string
	LogDir              string
	SaveSessionInterval int
	StartupTimeout      time.Duration
	StopTimeout         time.Duration
	PauseTimeout        time.Duration
}

// OptionsFromConfig maps the [engine] config section onto Options. LogDir is
// left empty unless engine logging is enabled.
func OptionsFromConfig(cfg *config.Config) Options {
	opts := Options{
		Binary:              cfg.Engine.Binary,
		Port:                cfg.Engine.Port,
		Concurrent:          cfg.Engine.Concurrent,
		Split:               cfg.Engine.Split,
		SpeedLimit:          cfg.Engine.SpeedLimit,
		OverallSpeedLimit:   cfg.Engine.OverallSpeedLimit,
		DiskCache:           cfg.Engine.DiskCache,
		LogLevel:            cfg.Engine.LogLevel,
		SaveSessionInterval: cfg.Engine.SaveSessionInterval,
		StartupTimeout:      time.Duration(cfg.Engine.StartupTimeoutSeconds) * time.Second,
		StopTimeout:         time.Duration(cfg.Engine.StopTimeoutSeconds) * time.Second,
		PauseTimeout:        time.Duration(cfg.Engine.PauseTimeoutSeconds) * time.Second,
	}
	if cfg.Engine.EnableLogging {
		opts.LogDir = cfg.EngineLogDir()
	}
	return opts
}

func (o Options) withDefaults() Options {
	if o.Binary == "" {
		o.Binary = "aria2c"
	}
	if o.Concurrent <= 0 {
		o.Concurrent = 3
	}
	if o.Split <= 0 {
		o.Split = 1
	}
	if o.SpeedLimit == "" {
		o.SpeedLimit = "0"
	}
	if o.OverallSpeedLimit == "" {
		o.OverallSpeedLimit = "0"
	}
	if o.LogLevel == "" {
		o.LogLevel = "notice"
	}
	if o.StartupTimeout <= 0 {
		o.StartupTimeout = 5 * time.Second
	}
	if o.StopTimeout <= 0 {
		o.StopTimeout = 10 * time.Second
	}
	if o.PauseTimeout <= 0 {
		o.PauseTimeout = 5 * time.Second
	}
	return o
}

// args builds the aria2c command line. resume adds --input-file so jobs
// recorded in the session continue from their last offset.
func (o Options) args(port int, secret, sessionPath string, resume bool) []string {
	args := []string{
		"--enable-rpc=true",
		"--rpc-listen-all=false",
		"--rpc-allow-origin-all=true",
		"--rpc-listen-port=" + strconv.Itoa(port),
		"--rpc-secret=" + secret,
		"--enable-color=false",
		"--show-console-readout=false",
		"--summary-interval=0",
		"--log-level=" + o.LogLevel,
		"--console-log-level=" + o.LogLevel,
		"--max-concurrent-downloads=" + strconv.Itoa(o.Concurrent),
		"--split=" + strconv.Itoa(o.Split),
		"--max-download-limit=" + o.SpeedLimit,
		"--max-overall-download-limit=" + o.OverallSpeedLimit,
		"--conditional-get=true",
		"--remote-time=true",
		"--stop-with-process=" + strconv.Itoa(os.Getpid()),
	}
	if o.DiskCache != "" {
		args = append(args, "--disk-cache="+o.DiskCache)
	}
	if resume {
		args = append(args, "--input-file="+sessionPath)
	}
	args = append(args,
		"--save-session="+sessionPath,
		"--save-session-interval="+strconv.Itoa(o.SaveSessionInterval),
	)
	return args
}
