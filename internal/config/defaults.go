package config

// Default values for configuration options. These represent the "layer 0"
// of the four-layer override chain and work without any config file.
const (
	defaultBackupDir      = "~/gdrive-backup"
	defaultStartDate      = "2010-01-01"
	defaultConvertedDir   = "Converted Files"
	defaultLogLevel       = "info"
	defaultLogFormat      = "text"
	defaultLogMaxSize     = "10MiB"
	defaultLogMaxBackups  = 5
	defaultConnectTimeout = "30s"
	defaultMaxRetries     = 5
)

// DefaultConfig returns a Config populated with all default values.
// It is the starting point for TOML decoding, so unset keys keep defaults.
func DefaultConfig() *Config {
	return &Config{
		BackupConfig: BackupConfig{
			BackupDir:    defaultBackupDir,
			StartDate:    defaultStartDate,
			ConvertedDir: defaultConvertedDir,
		},
		LoggingConfig: LoggingConfig{
			LogLevel:      defaultLogLevel,
			LogFormat:     defaultLogFormat,
			LogMaxSize:    defaultLogMaxSize,
			LogMaxBackups: defaultLogMaxBackups,
		},
		NetworkConfig: NetworkConfig{
			ConnectTimeout: defaultConnectTimeout,
			MaxRetries:     defaultMaxRetries,
		},
	}
}
