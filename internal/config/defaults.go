package config

const (
	defaultDataDir             = "~/.local/share/docforge/data"
	defaultAssetDir            = "~/.local/share/docforge/assets"
	defaultLogDir              = "~/.local/share/docforge/logs"
	defaultAPIBind             = "127.0.0.1:7718"
	defaultWorkerCount         = 4
	defaultQueuePollInterval   = 2
	defaultErrorRetryInterval  = 5
	defaultHeartbeatInterval   = 15
	defaultHeartbeatTimeout    = 120
	defaultMaxDepthPerTier     = 100
	defaultAverageStageSeconds = 12
	defaultUploadTimeout       = 60
	defaultAnalysisTimeout     = 120
	defaultPlanningTimeout     = 90
	defaultGenerationTimeout   = 300
	defaultCompositionTimeout  = 180
	defaultMaxAttempts         = 3
	defaultInitialDelay        = 2
	defaultMultiplier          = 2.0
	defaultMaxDelay            = 60
	defaultMinPercentDelta     = 5.0
	defaultMinIntervalSeconds  = 1
	defaultSubscriberBuffer    = 16
	defaultProbeInterval       = 30
	defaultProbeTimeout        = 5
	defaultBreakerFailures     = 3
	defaultBreakerCooldown     = 30
	defaultErrorRateLimit      = 0.5
	defaultProviderName        = "openrouter"
	defaultProviderBaseURL     = "https://openrouter.ai/api/v1"
	defaultProviderModel       = "google/gemini-3-flash-preview"
	defaultProviderTimeout     = 120
	defaultTelemetryExporter   = "stdout"
	defaultServiceName         = "docforge"
	defaultRedisAddr           = "127.0.0.1:6379"
	defaultRedisPrefix         = "docforge:progress"
	defaultNotifyTimeout       = 10
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:  defaultDataDir,
			AssetDir: defaultAssetDir,
			LogDir:   defaultLogDir,
			APIBind:  defaultAPIBind,
		},
		Workers: Workers{
			Count:              defaultWorkerCount,
			QueuePollInterval:  defaultQueuePollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			HeartbeatInterval:  defaultHeartbeatInterval,
			HeartbeatTimeout:   defaultHeartbeatTimeout,
		},
		Queue: Queue{
			MaxDepthPerTier:     defaultMaxDepthPerTier,
			AverageStageSeconds: defaultAverageStageSeconds,
		},
		Stages: Stages{
			UploadConfirmTimeout: defaultUploadTimeout,
			AnalysisTimeout:      defaultAnalysisTimeout,
			PlanningTimeout:      defaultPlanningTimeout,
			GenerationTimeout:    defaultGenerationTimeout,
			CompositionTimeout:   defaultCompositionTimeout,
		},
		Retry: Retry{
			MaxAttempts:  defaultMaxAttempts,
			InitialDelay: defaultInitialDelay,
			Multiplier:   defaultMultiplier,
			MaxDelay:     defaultMaxDelay,
		},
		Progress: Progress{
			MinPercentDelta:    defaultMinPercentDelta,
			MinIntervalSeconds: defaultMinIntervalSeconds,
			SubscriberBuffer:   defaultSubscriberBuffer,
		},
		Health: Health{
			ProbeInterval:   defaultProbeInterval,
			ProbeTimeout:    defaultProbeTimeout,
			BreakerFailures: defaultBreakerFailures,
			BreakerCooldown: defaultBreakerCooldown,
			ErrorRateLimit:  defaultErrorRateLimit,
		},
		Provider: Provider{
			Name:           defaultProviderName,
			BaseURL:        defaultProviderBaseURL,
			Model:          defaultProviderModel,
			TimeoutSeconds: defaultProviderTimeout,
		},
		Telemetry: Telemetry{
			Exporter:    defaultTelemetryExporter,
			ServiceName: defaultServiceName,
		},
		Redis: Redis{
			Addr:          defaultRedisAddr,
			ChannelPrefix: defaultRedisPrefix,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			JobCompleted:   true,
			JobFailed:      true,
			BatchFinished:  true,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
