package main

import (
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/CrestNiraj12/rantfeed/infra/config"
	"github.com/CrestNiraj12/rantfeed/infra/logging"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// cli carries state shared by all commands of one invocation.
type cli struct {
	verbose     bool
	accessToken string
	cfg         config.Config
	logger      *zap.Logger
	out         io.Writer
}

func newRootCmd() *cobra.Command {
	c := &cli{out: os.Stdout}
	v, cm, d := resolvedRuntimeVersionInfo(version, commit, date)

	root := &cobra.Command{
		Use:   "rantfeed",
		Short: "rantfeed - a small social feed with likes and favorites",
		Long: `rantfeed serves a social feed over HTTP and talks to a running server.

Run "rantfeed serve" to start the server. The other commands are clients
of the server configured by RANTFEED_API_URL and RANTFEED_TOKEN.`,
		Version:       fmt.Sprintf("%s\ncommit: %s\nbuilt: %s", v, cm, d),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			c.out = cmd.OutOrStdout()
			if !needsConfig(cmd) {
				return nil
			}
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			c.cfg = cfg
			c.logger, err = logging.New(cfg.Log.Level, cfg.Log.Format, c.verbose)
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
	}
	root.SetVersionTemplate("rantfeed {{.Version}}\n")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "Enable verbose logging")
	root.PersistentFlags().StringVar(&c.accessToken, "access-token", "", "Bearer token to use instead of the token file")

	root.AddCommand(
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "rantfeed %s\ncommit: %s\nbuilt: %s\n", v, cm, d)
			},
		},
		c.serveCmd(),
		c.migrateCmd(),
		c.tokenCmd(),
	)
	root.AddCommand(c.clientCmds()...)
	return root
}

// needsConfig reports whether cmd reads configuration. Informational
// commands work with a broken environment.
func needsConfig(cmd *cobra.Command) bool {
	for ; cmd != nil; cmd = cmd.Parent() {
		switch cmd.Name() {
		case "version", "help", "completion":
			return false
		}
	}
	return true
}

func resolveVersionInfo(v, c, d, moduleVersion string, settings map[string]string) (string, string, string) {
	if v == "dev" {
		mv := strings.TrimSpace(moduleVersion)
		if mv != "" && mv != "(devel)" {
			v = mv
		}
	}
	if c == "none" {
		rev := strings.TrimSpace(settings["vcs.revision"])
		if rev != "" {
			if len(rev) > 12 {
				rev = rev[:12]
			}
			c = rev
		}
	}
	if d == "unknown" {
		t := strings.TrimSpace(settings["vcs.time"])
		if t != "" {
			d = t
		}
	}
	return v, c, d
}

func buildSettingsMap(in []debug.BuildSetting) map[string]string {
	out := make(map[string]string, len(in))
	for _, s := range in {
		out[s.Key] = s.Value
	}
	return out
}

func resolvedRuntimeVersionInfo(v, c, d string) (string, string, string) {
	info, ok := debug.ReadBuildInfo()
	if !ok || info == nil {
		return v, c, d
	}
	return resolveVersionInfo(v, c, d, info.Main.Version, buildSettingsMap(info.Settings))
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "rantfeed: %v\n", err)
		os.Exit(1)
	}
}
