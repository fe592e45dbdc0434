// Package cli holds the datahub-upgrade commands.
package cli

import (
	"context"
	"flag"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/datahub-project/datahub-upgrade/internal/config"
)

// app carries state shared by the commands of one root command
type app struct {
	v       *viper.Viper
	zapOpts *zap.Options
	cfg     *config.Config
	logFile io.Closer
}

func RootCmd() *cobra.Command {
	a := &app{
		v:       config.NewViper(),
		zapOpts: &zap.Options{Development: true},
	}

	cmd := &cobra.Command{
		Use:          "datahub-upgrade",
		Short:        "Run and track DataHub upgrades",
		Long:         `Runs named DataHub upgrades, records their results and exports them from a Kubernetes controller.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}

	config.AddFlags(cmd.PersistentFlags())

	goFlags := flag.NewFlagSet("zap", flag.ContinueOnError)
	a.zapOpts.BindFlags(goFlags)
	cmd.PersistentFlags().AddGoFlagSet(goFlags)

	cmd.AddCommand(RunCmd(a))
	cmd.AddCommand(StatusCmd(a))
	cmd.AddCommand(ListCmd(a))
	cmd.AddCommand(PatchCmd(a))
	cmd.AddCommand(ControllerCmd(a))
	cmd.AddCommand(PackageCmd(a))
	cmd.AddCommand(VersionCmd())

	return cmd
}

// InitAndExecute runs the root command until ctx is cancelled
func InitAndExecute(ctx context.Context) {
	if err := RootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func (a *app) init(cmd *cobra.Command) error {
	if err := a.v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	cfg, err := config.Load(a.v)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logFile = setupLogger(cfg.Log, a.zapOpts, cmd.ErrOrStderr())
	return nil
}

func (a *app) close() error {
	if a.logFile == nil {
		return nil
	}
	return a.logFile.Close()
}
