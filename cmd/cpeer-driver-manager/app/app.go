package app

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"
	cliflag "k8s.io/component-base/cli/flag"
	"k8s.io/component-base/cli/globalflag"

	"github.com/autopeer-io/drivermgr/cmd/cpeer-driver-manager/app/options"
	"github.com/autopeer-io/drivermgr/internal/drivermgr"
	"github.com/autopeer-io/drivermgr/pkg/log"
)

func NewDriverManagerCommand(ctx context.Context) *cobra.Command {
	opts := options.NewDriverManagerOptions()
	cmd := &cobra.Command{
		Use:          "cpeer-driver-manager",
		Long:         "The driver manager binds communication adapters to vehicles and reports their state.",
		SilenceUsage: true,
	}

	fs := cmd.PersistentFlags()
	namedfs := opts.Flags()
	globalflag.AddGlobalFlags(namedfs.FlagSet("global"), cmd.Name())
	for _, f := range namedfs.FlagSets {
		fs.AddFlagSet(f)
	}
	cliflag.SetUsageAndHelpFunc(cmd, namedfs, 100)

	cmd.AddCommand(newServeCommand(ctx, opts), newVehiclesCommand(ctx, opts))
	return cmd
}

func newServeCommand(ctx context.Context, opts *options.DriverManagerOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the driver manager daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := complete(cmd, opts)
			if err != nil {
				return err
			}
			log.Init(opts.Log)
			defer func() { _ = log.Sync() }()

			d, err := cfg.NewDriverManager()
			if err != nil {
				log.Error(err, "failed to new driver manager")
				return err
			}
			if err := d.Run(ctx); err != nil {
				log.Error(err, "driver manager stopped with error")
				return err
			}
			return nil
		},
	}
}

func newVehiclesCommand(ctx context.Context, opts *options.DriverManagerOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "vehicles",
		Short: "List the vehicles of the directory and the drivers that support them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := complete(cmd, opts)
			if err != nil {
				return err
			}
			return printVehicles(ctx, cmd.OutOrStdout(), cfg)
		},
	}
}

func complete(cmd *cobra.Command, opts *options.DriverManagerOptions) (*drivermgr.Config, error) {
	if err := opts.Complete(cmd.Flags()); err != nil {
		return nil, err
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return opts.Config()
}

func printVehicles(ctx context.Context, out io.Writer, cfg *drivermgr.Config) error {
	dir, _, err := cfg.NewDirectory()
	if err != nil {
		return err
	}
	vehicles, err := dir.Vehicles(ctx)
	if err != nil {
		return fmt.Errorf("load vehicles: %w", err)
	}
	reg, err := drivermgr.NewRegistry()
	if err != nil {
		return err
	}

	table := uitable.New()
	table.MaxColWidth = 60
	table.Wrap = true
	table.AddRow("VEHICLE", "LENGTH", "DRIVERS")
	for _, v := range vehicles {
		var drivers []string
		for _, f := range reg.FindFactoriesFor(v) {
			drivers = append(drivers, f.Description())
		}
		if len(drivers) == 0 {
			drivers = append(drivers, "<none>")
		}
		table.AddRow(v.Name, v.Length, strings.Join(drivers, ", "))
	}
	_, err = fmt.Fprintln(out, table)
	return err
}
