package util

import (
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/joho/godotenv"
	"github.com/lbraun/sKV/lib/store"
	"github.com/lbraun/sKV/lib/store/fstore"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		// Add the word
		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	// Add any remaining text
	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// SetupStoreFlags adds the common store flags to a command
func SetupStoreFlags(cmd *cobra.Command) {
	key := "file"
	cmd.PersistentFlags().String(key, "skv.json", WrapString("Path to the store file"))

	key = "lock-timeout"
	cmd.PersistentFlags().Int(key, 10, WrapString("How long to wait for the advisory file lock (in seconds)"))

	key = "sweep-interval"
	cmd.PersistentFlags().Int(key, 1, WrapString("Pause between background expiry sweeps (in seconds)"))

	key = "duplicate-policy"
	cmd.PersistentFlags().String(key, "overwrite", WrapString("Behavior when creating a key that already exists (overwrite, reject)"))

	key = "log-level"
	cmd.PersistentFlags().String(key, "warn", WrapString("Log level (trace, debug, info, warn, error, off)"))
}

// InitCLIConfig initializes configuration from environment variables
func InitCLIConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("skv")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// GetStoreOptions reads the store configuration from viper
func GetStoreOptions() (*fstore.Options, error) {
	policy, err := store.ParseDuplicatePolicy(viper.GetString("duplicate-policy"))
	if err != nil {
		return nil, err
	}

	opts := fstore.DefaultOptions(viper.GetString("file"))
	opts.OnDuplicate = policy
	opts.LockTimeout = time.Duration(viper.GetInt("lock-timeout")) * time.Second
	opts.SweepInterval = time.Duration(viper.GetInt("sweep-interval")) * time.Second
	opts.Logger = GetLogger()

	return opts, nil
}

// GetLogger creates the CLI logger based on configuration
func GetLogger() hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:  "skv",
		Level: hclog.LevelFromString(viper.GetString("log-level")),
	})
}

// GetLockTimeout retrieves the configured file lock timeout
func GetLockTimeout() time.Duration {
	return time.Duration(viper.GetInt("lock-timeout")) * time.Second
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}
