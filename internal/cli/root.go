package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harun/gpchat/internal/config"
	"github.com/harun/gpchat/internal/logger"
	"github.com/harun/gpchat/pkg/chat"
)

const version = "0.1.0"

var (
	cfgFile  string
	logLevel string
	startNew bool
	resumeID int64
)

// rootCmd sends one chat message and prints the assistant's reply. Only the
// reply goes to stdout; logs and errors go to stderr.
var rootCmd = &cobra.Command{
	Use:   "gpchat [message...]",
	Short: "gpchat - persistent command-line ChatGPT client",
	Long: `gpchat sends a message to a chat-completions API and prints the reply.
Conversations persist across invocations: every exchange is appended to a
session log and replayed as context on the next call.`,
	Version:      version,
	Args:         cobra.ArbitraryArgs,
	SilenceUsage: true,
	RunE:         runChat,
}

// Execute runs the root command. Called by main.main().
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/gpchat/config.json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	rootCmd.Flags().BoolVar(&startNew, "new", false, "start a new session instead of resuming the active one")
	rootCmd.Flags().Int64Var(&resumeID, "resume_session", 0, "resume the session with the given id")

	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)
}

func runChat(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("no message given; usage: gpchat [message...]")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	l, err := logger.New(logger.Config{Level: cfg.Logging.Level, File: cfg.Logging.File})
	if err != nil {
		return err
	}
	defer l.Close()

	runner := chat.NewRunner(cfg, nil)
	reply, err := runner.SendChat(cmd.Context(), strings.Join(args, " "), startNew, resumeID)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), reply)
	return nil
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	return cfg, nil
}

// GetRootCmd returns the root command for testing.
func GetRootCmd() *cobra.Command {
	return rootCmd
}
