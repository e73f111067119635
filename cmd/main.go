package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/scitags/iwpm-go/cmd/subcmd"
	"github.com/scitags/iwpm-go/types"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.PersistentFlags().StringVar(&confPathFlag, "conf", "", "path to the configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "log level (trace, debug, info, warn or error); overrides the configuration")
	rootCmd.PersistentFlags().BoolVar(&logTimeFlag, "log-time", false, "include timestamps in log lines")
}

var (
	rootCmd = &cobra.Command{
		Use:   "iwpm",
		Short: "iWARP port mapper message and transport toolkit.",
		Long: "Inspect and exercise the iWARP port mapper wire protocol and the\n" +
			"netlink control channel to the kernel's RDMA subsystem.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setup()
		},
		SilenceUsage: true,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Get the built version.",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("built commit: %s\n", builtCommit)
		},
	}

	confPathFlag string
	logLevelFlag string
	logTimeFlag  bool

	conf        *Config
	builtCommit = "dev"
)

func init() {
	// Disable completion please!
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	// Add the different sub-commands
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(socketsCmd)
	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(subcmd.Pack)
	rootCmd.AddCommand(subcmd.Unpack)
}

func setup() error {
	var err error
	if confPathFlag != "" {
		conf, err = ReadConf(confPathFlag)
		if err != nil {
			return err
		}
	} else {
		conf = &Config{}
		if err := conf.UnmarshalYAML([]byte("{}")); err != nil {
			return fmt.Errorf("error applying default configuration: %w", err)
		}
	}

	levelName := conf.LogLevel
	if logLevelFlag != "" {
		levelName = logLevelFlag
	}

	level, ok := types.ParseLogLevel(levelName)
	if !ok {
		return fmt.Errorf("unknown log level %q", levelName)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		AddSource:   level <= types.LevelDebug,
		Level:       level,
		ReplaceAttr: logReplacements,
	}))
	slog.SetDefault(logger)

	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
