package config

const (
	defaultStagingDir     = "~/.local/share/murmur/staging"
	defaultOutputDir      = "~/transcripts"
	defaultLogDir         = "~/.local/share/murmur/logs"
	defaultWorkerPython   = "python3"
	defaultStartupTimeout = 30
	defaultMaxConcurrent  = 2
	defaultModel          = "base"
	defaultChatbotLimit   = 10
	defaultChatThreshold  = 0.35
	defaultLogFormat      = "console"
	defaultLogLevel       = "info"
)

func defaultFormats() []string {
	return []string{"txt", "srt"}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir: defaultStagingDir,
			OutputDir:  defaultOutputDir,
			LogDir:     defaultLogDir,
		},
		Worker: Worker{
			Python:         defaultWorkerPython,
			StartupTimeout: defaultStartupTimeout,
		},
		Batch: Batch{
			MaxConcurrent: defaultMaxConcurrent,
		},
		Transcription: Transcription{
			Model:   defaultModel,
			Formats: defaultFormats(),
		},
		Chatbot: Chatbot{
			Threshold: defaultChatThreshold,
			Limit:     defaultChatbotLimit,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
