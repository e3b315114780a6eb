package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/tether/pkg/client"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds persistent flags shared by all commands.
type GlobalFlags struct {
	ConfigPath string
}

// RunFlags override config values for the run command.
type RunFlags struct {
	InstallDir       string
	HandshakeTimeout time.Duration
	Listen           string
}

// QueryFlags select the host API for port, status and ping.
type QueryFlags struct {
	APIUrl     string
	APITimeout time.Duration
}

func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	root := &cobra.Command{
		Use:   "tether",
		Short: "Supervisor for a bundled backend server",
		Long: `Tether launches the bundled backend executable, learns its port from the
SERVER_PORT:<port> line it prints, and kills it on shutdown.

Examples:
  tether run --install-dir=/opt/app/resources
  tether run --config=tether.toml
  tether port
  tether status --api-url=http://127.0.0.1:7777/api`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&globalFlags.ConfigPath, "config", "", "path to TOML config file (optional)")

	root.AddCommand(
		createRunCommand(globalFlags),
		createPortCommand(),
		createStatusCommand(),
		createPingCommand(),
	)
	return root
}

func addQueryFlags(cmd *cobra.Command, f *QueryFlags) {
	cmd.Flags().StringVar(&f.APIUrl, "api-url", client.DefaultBaseURL, "host API URL")
	cmd.Flags().DurationVar(&f.APITimeout, "api-timeout", 10*time.Second, "request timeout")
}

func newClient(f *QueryFlags) *client.Client {
	return client.New(client.Config{BaseURL: f.APIUrl, Timeout: f.APITimeout})
}
