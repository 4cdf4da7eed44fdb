// Package cli contains the pcfilter command line interface.
package cli

import (
	"io"

	"github.com/urfave/cli/v2"
)

const (
	// Global flags.
	generalFlagConfig      = "config"
	generalFlagDebug       = "debug"
	generalFlagLogFile     = "log-file"
	generalFlagWorkers     = "workers"
	generalFlagParallelism = "parallelism"
	generalFlagOutput      = "output"
	generalFlagFormat      = "format"

	// Radius filter flags.
	radiusFlagK      = "k"
	radiusFlagRadius = "radius"

	// Statistical filter flags.
	statisticalFlagMeanK      = "mean-k"
	statisticalFlagMultiplier = "multiplier"
)

// NewApp returns the pcfilter app writing results to out and logs to errOut.
func NewApp(out, errOut io.Writer) *cli.App {
	return &cli.App{
		Name:            "pcfilter",
		Usage:           "remove outliers from point clouds",
		HideHelpCommand: true,
		Writer:          out,
		ErrWriter:       errOut,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    generalFlagConfig,
				Aliases: []string{"c"},
				Usage:   "load configuration from `FILE`",
			},
			&cli.BoolFlag{
				Name:    generalFlagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
			&cli.StringFlag{
				Name:  generalFlagLogFile,
				Usage: "also write logs to a rotated `FILE`",
			},
			&cli.IntFlag{
				Name:    generalFlagWorkers,
				Aliases: []string{"w"},
				Usage:   "number of workers splitting the point set",
			},
			&cli.IntFlag{
				Name:    generalFlagParallelism,
				Aliases: []string{"p"},
				Usage:   "number of goroutines each worker evaluates its range with",
			},
			&cli.StringFlag{
				Name:    generalFlagOutput,
				Aliases: []string{"o"},
				Usage:   "write surviving points to `FILE`",
			},
			&cli.StringFlag{
				Name:    generalFlagFormat,
				Aliases: []string{"f"},
				Usage:   "output format: pcd, pcd_binary, pcd_compressed, las or ply (default: inferred from the output path)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "radius",
				Aliases:   []string{"ror"},
				Usage:     "remove points with fewer than k neighbors within a radius",
				ArgsUsage: "[input file]",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  radiusFlagK,
						Usage: "minimum number of neighbors a point needs to survive",
					},
					&cli.Float64Flag{
						Name:    radiusFlagRadius,
						Aliases: []string{"r"},
						Usage:   "neighborhood radius",
					},
				},
				Action: RadiusAction,
			},
			{
				Name:      "statistical",
				Aliases:   []string{"sor"},
				Usage:     "remove points whose mean neighbor distance is far above average",
				ArgsUsage: "[input file]",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  statisticalFlagMeanK,
						Usage: "number of neighbors averaged per point",
					},
					&cli.Float64Flag{
						Name:  statisticalFlagMultiplier,
						Usage: "standard deviation multiplier of the threshold",
					},
				},
				Action: StatisticalAction,
			},
			{
				Name:      "run",
				Usage:     "run the filter selected by the config file",
				ArgsUsage: "[input file]",
				Action:    RunAction,
			},
		},
	}
}
