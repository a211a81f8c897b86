// Command orchestrator runs the daily pipeline orchestrator: by default it
// starts the Supervisor Loop and runs until signalled. Subcommands cover
// config validation, a human-readable status report, and a test-only
// journal reset.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/fenwicklabs/pipeline-orchestrator/internal/lock"
	"github.com/fenwicklabs/pipeline-orchestrator/internal/orcherr"
)

// Exit codes per the command-line surface: 0 normal, 2 config invalid, 3
// lock held by a peer, 4 state dir unwritable, 1 otherwise.
const (
	exitOK              = 0
	exitOther           = 1
	exitConfigInvalid   = 2
	exitLockHeld        = 3
	exitStateUnwritable = 4
)

var (
	version = "dev"
	commit  = "none"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "orchestrator",
	Short: "Daily pipeline orchestrator for the legacy reporting workflow",
	Long: `orchestrator runs the fixed daily DAG of download, merge, upload, and
report-generation steps against the legacy desktop application, enforcing
windows, dependencies, retries, and process hygiene.`,
	Version: fmt.Sprintf("%s (commit: %s)", version, commit),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSupervise(configPath)
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "orchestrator.yaml", "Path to the configuration document")

	rootCmd.AddCommand(newValidateCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newResetTodayCmd())
}

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "orchestrator:", err)
	}
	os.Exit(exitCodeFor(err))
}

// exitCodeFor maps a classified error to its dedicated exit code; an
// unclassified error (a bug, not a spec'd failure mode) exits 1.
func exitCodeFor(err error) int {
	if err == nil {
		return exitOK
	}
	if _, ok := err.(*lock.ErrHeldByPeer); ok {
		return exitLockHeld
	}
	if classified, ok := orcherr.As(err); ok {
		switch classified.Category() {
		case orcherr.CategoryConfig:
			return exitConfigInvalid
		case orcherr.CategoryLock:
			return exitLockHeld
		case orcherr.CategoryStateIO:
			return exitStateUnwritable
		}
	}
	return exitOther
}
