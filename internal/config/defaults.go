package config

const (
	defaultDataDir                     = "~/.local/share/courier"
	defaultLogDir                      = "~/.local/share/courier/logs"
	defaultAPIBind                     = "127.0.0.1:7488"
	defaultStoreBackend                = BackendSQLite
	defaultRedisAddr                   = "127.0.0.1:6379"
	defaultRedisPrefix                 = "courier:"
	defaultInteractiveWorkers          = 4
	defaultBackgroundWorkers           = 2
	defaultInteractivePollIntervalMS   = 500
	defaultBackgroundPollIntervalMS    = 5000
	defaultMaxAttempts                 = 3
	defaultStaleTimeoutSeconds         = 600
	defaultDrainTimeoutSeconds         = 30
	defaultHousekeepingIntervalSeconds = 60
	defaultCompletedRetentionHours     = 24
	defaultDeadRetentionDays           = 7
	defaultHandlerTimeoutSeconds       = 300
	defaultErrorBackoffSeconds         = 2
	defaultRetryBackoffBaseSeconds     = 5
	defaultRetryBackoffMaxSeconds      = 600
	defaultMaxMessageLength            = 2000
	defaultGatewayTimeoutSeconds       = 30
	defaultContextTTLSeconds           = 300
	defaultHistoryLimit                = 20
	defaultOpenAIBaseURL               = "https://openrouter.ai/api/v1/chat/completions"
	defaultOpenAIModel                 = "google/gemini-2.5-flash"
	defaultGeminiModel                 = "gemini-2.0-flash"
	defaultLLMTimeoutSeconds           = 60
	defaultNotifyRequestTimeout        = 10
	defaultLogFormat                   = "console"
	defaultLogLevel                    = "info"
	defaultLogRetentionDays            = 30
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Store: Store{
			Backend:     defaultStoreBackend,
			RedisAddr:   defaultRedisAddr,
			RedisPrefix: defaultRedisPrefix,
		},
		Queue: Queue{
			InteractiveWorkers:          defaultInteractiveWorkers,
			BackgroundWorkers:           defaultBackgroundWorkers,
			InteractivePollIntervalMS:   defaultInteractivePollIntervalMS,
			BackgroundPollIntervalMS:    defaultBackgroundPollIntervalMS,
			MaxAttempts:                 defaultMaxAttempts,
			StaleTimeoutSeconds:         defaultStaleTimeoutSeconds,
			DrainTimeoutSeconds:         defaultDrainTimeoutSeconds,
			HousekeepingIntervalSeconds: defaultHousekeepingIntervalSeconds,
			CompletedRetentionHours:     defaultCompletedRetentionHours,
			DeadRetentionDays:           defaultDeadRetentionDays,
			HandlerTimeoutSeconds:       defaultHandlerTimeoutSeconds,
			ErrorBackoffSeconds:         defaultErrorBackoffSeconds,
			RetryBackoffBaseSeconds:     defaultRetryBackoffBaseSeconds,
			RetryBackoffMaxSeconds:      defaultRetryBackoffMaxSeconds,
		},
		Gateway: Gateway{
			MaxMessageLength:  defaultMaxMessageLength,
			TimeoutSeconds:    defaultGatewayTimeoutSeconds,
			ContextTTLSeconds: defaultContextTTLSeconds,
			HistoryLimit:      defaultHistoryLimit,
		},
		LLM: LLM{
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			DeadLetter:     true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
