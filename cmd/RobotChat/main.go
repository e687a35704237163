// Command RobotChat runs the website chat relay and contact-form service.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/BTreeMap/RobotChat/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir holds the lock file and, by default, the submission files.
	DefaultStateDir = "./data"
	// DefaultAPIAddr is the listen address of the HTTP API.
	DefaultAPIAddr = ":3001"
	// DefaultSubmissionsDirName is the file-store directory under the state directory.
	DefaultSubmissionsDirName = "submissions"
	// DefaultContactConfigName is looked up in the working directory when CONTACT_CONFIG is unset.
	DefaultContactConfigName = "contact-config.yaml"
)

// Config holds environment configuration
type Config struct {
	LLMAPIKey      string
	LLMBaseURL     string
	LLMModel       string
	LLMDebugDir    string
	APIAddr        string
	StateDir       string
	ContactConfig  string
	SubmissionsDSN string
	AWSRegion      string
	AWSAccessKey   string
	AWSSecretKey   string
	SMTPUser       string
	SMTPPass       string
	CORSOrigins    []string
	Debug          bool
}

var (
	cfg     Config
	version = "dev" // set via ldflags at build time
)

var rootCmd = &cobra.Command{
	Use:   "RobotChat",
	Short: "Website chat relay and conversational contact form",
	Long: `RobotChat relays website chat conversations to an OpenAI-compatible model
and runs a step-by-step contact form whose submissions are stored and
e-mailed to an operator.`,
	Version:       version,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		initializeLogger(cfg.Debug)
	},
}

func main() {
	if err := godotenv.Load(); err != nil {
		// Logger is not configured yet; the debug line is emitted by the default handler.
		slog.Debug("failed to load .env file", "error", err)
	}
	cfg = loadEnvironmentConfig()
	registerFlags(rootCmd, &cfg)
	registerServeFlags(serveCmd, &cfg)
	registerChatFlags(chatCmd)
	registerSubmissionsFlags(submissionsCmd)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(submissionsCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// initializeLogger sets up structured logging, at debug level when requested.
func initializeLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig reads configuration from environment variables.
func loadEnvironmentConfig() Config {
	c := Config{
		LLMAPIKey:      util.GetenvDefault("", "LLM_API_KEY", "DEEPSEEK_API_KEY", "OPENAI_API_KEY"),
		LLMBaseURL:     os.Getenv("LLM_BASE_URL"),
		LLMModel:       os.Getenv("LLM_MODEL"),
		LLMDebugDir:    os.Getenv("LLM_DEBUG_DIR"),
		APIAddr:        util.GetenvDefault(DefaultAPIAddr, "API_ADDR"),
		StateDir:       util.GetenvDefault(DefaultStateDir, "ROBOTCHAT_STATE_DIR"),
		ContactConfig:  os.Getenv("CONTACT_CONFIG"),
		SubmissionsDSN: os.Getenv("SUBMISSIONS_DSN"),
		AWSRegion:      util.GetenvDefault("", "AWS_REGION"),
		AWSAccessKey:   os.Getenv("AWS_ACCESS_KEY"),
		AWSSecretKey:   os.Getenv("AWS_SECRET_KEY"),
		SMTPUser:       os.Getenv("SMTP_USER"),
		SMTPPass:       os.Getenv("SMTP_PASS"),
		CORSOrigins:    util.ParseListEnv("CORS_ORIGINS", []string{"*"}),
		Debug:          util.ParseBoolEnv("ROBOTCHAT_DEBUG", false),
	}
	if c.ContactConfig == "" {
		c.ContactConfig = DefaultContactConfigName
	}

	slog.Debug("environment variables loaded",
		"LLM_API_KEY_SET", c.LLMAPIKey != "",
		"LLM_BASE_URL", c.LLMBaseURL,
		"LLM_MODEL", c.LLMModel,
		"API_ADDR", c.APIAddr,
		"ROBOTCHAT_STATE_DIR", c.StateDir,
		"CONTACT_CONFIG", c.ContactConfig,
		"SUBMISSIONS_DSN_SET", c.SubmissionsDSN != "",
		"SMTP_USER_SET", c.SMTPUser != "",
		"CORS_ORIGINS", c.CORSOrigins)
	return c
}

// registerFlags binds the persistent flags, with environment values as defaults.
func registerFlags(cmd *cobra.Command, c *Config) {
	f := cmd.PersistentFlags()
	f.BoolVar(&c.Debug, "debug", c.Debug, "enable debug logging (overrides $ROBOTCHAT_DEBUG)")
	f.StringVar(&c.StateDir, "state-dir", c.StateDir, "state directory for lock and submission files (overrides $ROBOTCHAT_STATE_DIR)")
	f.StringVar(&c.ContactConfig, "contact-config", c.ContactConfig, "contact form YAML file (overrides $CONTACT_CONFIG)")
	f.StringVar(&c.SubmissionsDSN, "submissions-dsn", c.SubmissionsDSN, "submission store: empty for files, SQLite path, Postgres DSN, s3://bucket/prefix or memory (overrides $SUBMISSIONS_DSN)")
	f.StringVar(&c.LLMAPIKey, "llm-api-key", c.LLMAPIKey, "chat model API key (overrides $LLM_API_KEY)")
	f.StringVar(&c.LLMBaseURL, "llm-base-url", c.LLMBaseURL, "OpenAI-compatible base URL (overrides $LLM_BASE_URL)")
	f.StringVar(&c.LLMModel, "llm-model", c.LLMModel, "default chat model (overrides $LLM_MODEL)")
	f.StringVar(&c.LLMDebugDir, "llm-debug-dir", c.LLMDebugDir, "write every model call as JSON into this directory (overrides $LLM_DEBUG_DIR)")
}

// submissionsDir is the file-store directory for the given contact config dir setting.
func submissionsDir(c Config, configured string) string {
	if configured != "" {
		return configured
	}
	return filepath.Join(c.StateDir, DefaultSubmissionsDirName)
}
