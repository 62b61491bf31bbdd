package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeWorker(); err != nil {
		return err
	}
	c.normalizeBatch()
	c.normalizeTranscription()
	c.normalizeChatbot()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		c.Paths.StagingDir = defaultStagingDir
	}
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		c.Paths.OutputDir = defaultOutputDir
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeWorker() error {
	c.Worker.Python = strings.TrimSpace(c.Worker.Python)
	if c.Worker.Python == "" {
		c.Worker.Python = defaultWorkerPython
	}
	c.Worker.Script = strings.TrimSpace(c.Worker.Script)
	if c.Worker.Script != "" {
		expanded, err := expandPath(c.Worker.Script)
		if err != nil {
			return fmt.Errorf("worker.script: %w", err)
		}
		c.Worker.Script = expanded
	}
	if c.Worker.StartupTimeout <= 0 {
		c.Worker.StartupTimeout = defaultStartupTimeout
	}
	return nil
}

func (c *Config) normalizeBatch() {
	if c.Batch.MaxConcurrent <= 0 {
		c.Batch.MaxConcurrent = defaultMaxConcurrent
	}
}

func (c *Config) normalizeTranscription() {
	c.Transcription.Model = strings.TrimSpace(c.Transcription.Model)
	if c.Transcription.Model == "" {
		c.Transcription.Model = defaultModel
	}
	formats := make([]string, 0, len(c.Transcription.Formats))
	for _, format := range c.Transcription.Formats {
		format = strings.ToLower(strings.TrimSpace(format))
		if format != "" {
			formats = append(formats, format)
		}
	}
	if len(formats) == 0 {
		formats = defaultFormats()
	}
	c.Transcription.Formats = formats
	c.Transcription.Language = strings.TrimSpace(c.Transcription.Language)
}

func (c *Config) normalizeChatbot() {
	if c.Chatbot.Threshold <= 0 {
		c.Chatbot.Threshold = defaultChatThreshold
	}
	if c.Chatbot.Limit <= 0 {
		c.Chatbot.Limit = defaultChatbotLimit
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
