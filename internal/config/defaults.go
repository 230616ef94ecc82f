package config

const (
	defaultOutputDir               = "~/Pictures/galleria"
	defaultStateDir                = "~/.local/share/galleria"
	defaultLogDir                  = "~/.local/share/galleria/logs"
	defaultLogRetentionDays        = 30
	defaultLogFormat               = "console"
	defaultLogLevel                = "info"
	defaultEngineBinary            = "aria2c"
	defaultEngineConcurrent        = 3
	defaultEngineSplit             = 1
	defaultEngineSpeedLimit        = "0"
	defaultEngineLogLevel          = "notice"
	defaultSaveSessionInterval     = 1
	defaultEngineStartupTimeout    = 5
	defaultEngineStopTimeout       = 10
	defaultEnginePauseTimeout      = 5
	defaultProxyURL                = "http://127.0.0.1:9999"
	defaultStatusIntervalMS        = 1000
	defaultSampleIntervalMS        = 250
	defaultWindowSeconds           = 10
	defaultMaxGapMS                = 1000
	defaultStallThresholdKiB       = 256
	defaultAdapterRequestTimeout   = 30
	defaultNotifyRequestTimeoutSec = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			OutputDir: defaultOutputDir,
			StateDir:  defaultStateDir,
			LogDir:    defaultLogDir,
		},
		Engine: Engine{
			Binary:                defaultEngineBinary,
			Concurrent:            defaultEngineConcurrent,
			Split:                 defaultEngineSplit,
			SpeedLimit:            defaultEngineSpeedLimit,
			OverallSpeedLimit:     defaultEngineSpeedLimit,
			LogLevel:              defaultEngineLogLevel,
			SaveSessionInterval:   defaultSaveSessionInterval,
			StartupTimeoutSeconds: defaultEngineStartupTimeout,
			StopTimeoutSeconds:    defaultEngineStopTimeout,
			PauseTimeoutSeconds:   defaultEnginePauseTimeout,
		},
		Proxy: Proxy{
			URL: defaultProxyURL,
		},
		Monitor: Monitor{
			StatusIntervalMS:  defaultStatusIntervalMS,
			SampleIntervalMS:  defaultSampleIntervalMS,
			WindowSeconds:     defaultWindowSeconds,
			MaxGapMS:          defaultMaxGapMS,
			StallThresholdKiB: defaultStallThresholdKiB,
		},
		Adapters: Adapters{
			RequestTimeoutSeconds: defaultAdapterRequestTimeout,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeoutSec,
		},
	}
}
