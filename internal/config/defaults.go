package config

const (
	// DefaultBatchSize bounds how many untranslated entries go into one request.
	DefaultBatchSize = 7
	// DefaultHistorySize is how many resolved entries precede each batch as context.
	DefaultHistorySize = 2
	// DefaultNextLines is how many upcoming source lines follow each batch as context.
	DefaultNextLines = 3
	// DefaultTimeoutSeconds bounds a single translation request.
	DefaultTimeoutSeconds = 30
	// DefaultRetryAttempts bounds retries for a failing batch.
	DefaultRetryAttempts = 3

	defaultLogLevel  = "info"
	defaultLogFormat = "console"
	defaultModel     = "galtransl-v2"
	defaultStyle     = "流畅"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		BatchSize:     DefaultBatchSize,
		HistorySize:   DefaultHistorySize,
		NextLines:     DefaultNextLines,
		Timeout:       DefaultTimeoutSeconds,
		RetryAttempts: DefaultRetryAttempts,
		Logging: Logging{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
	}
}
