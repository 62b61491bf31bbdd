package config

import (
	"errors"
	"fmt"

	"murmur/internal/services"
)

// Validate ensures the configuration is usable. Failures are tagged with
// services.ErrConfiguration so callers can classify them as setup problems.
func (c *Config) Validate() error {
	checks := []func() error{
		c.validateWorker,
		c.validateBatch,
		c.validateChatbot,
		c.validateLogging,
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return services.Wrap(services.ErrConfiguration, "config", "validate", "", err)
		}
	}
	return nil
}

func (c *Config) validateWorker() error {
	if c.Worker.Script == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/murmur/config.toml"
		}
		return fmt.Errorf("worker.script is required. Edit %s (create with 'murmur config init')", defaultPath)
	}
	if c.Worker.StartupTimeout <= 0 {
		return errors.New("worker.startup_timeout must be positive")
	}
	return nil
}

func (c *Config) validateBatch() error {
	if c.Batch.MaxConcurrent < 1 || c.Batch.MaxConcurrent > 16 {
		return errors.New("batch.max_concurrent must be between 1 and 16")
	}
	return nil
}

func (c *Config) validateChatbot() error {
	if c.Chatbot.Threshold < 0 || c.Chatbot.Threshold > 1 {
		return errors.New("chatbot.threshold must be between 0 and 1")
	}
	if c.Chatbot.Limit < 1 {
		return errors.New("chatbot.limit must be at least 1")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}
