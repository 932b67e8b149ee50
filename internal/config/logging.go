package config

// LoggingConfig configures client logging.
type LoggingConfig struct {
	// Level is the minimum level: debug, info, warn or error.
	Level string `yaml:"level"`

	// Format is "text" or "json".
	Format string `yaml:"format"`

	// File, when non-empty, adds rotated file output at this path.
	File string `yaml:"file"`

	Rotation RotationConfig `yaml:"rotation"`
}

// RotationConfig bounds log file growth.
type RotationConfig struct {
	MaxSize    int  `yaml:"max_size"` // megabytes
	MaxBackups int  `yaml:"max_backups"`
	MaxAge     int  `yaml:"max_age"` // days
	Compress   bool `yaml:"compress"`
}

// DefaultLoggingConfig returns the logging defaults.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level:  "info",
		Format: "text",
		Rotation: RotationConfig{
			MaxSize:    50,
			MaxBackups: 3,
			MaxAge:     14,
		},
	}
}
