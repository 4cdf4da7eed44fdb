package cli

import (
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.viam.com/utils"

	"go.viam.com/pcfilter/config"
	"go.viam.com/pcfilter/coordinator"
	"go.viam.com/pcfilter/logging"
	"go.viam.com/pcfilter/outlier"
	"go.viam.com/pcfilter/pointcloud"
)

// RadiusAction runs the radius filter.
func RadiusAction(c *cli.Context) error {
	attrs := config.AttributeMap{}
	if c.IsSet(radiusFlagK) {
		attrs["k"] = c.Int(radiusFlagK)
	}
	if c.IsSet(radiusFlagRadius) {
		attrs["radius"] = c.Float64(radiusFlagRadius)
	}
	return runFilter(c, outlier.Radius, attrs)
}

// StatisticalAction runs the statistical filter.
func StatisticalAction(c *cli.Context) error {
	attrs := config.AttributeMap{}
	if c.IsSet(statisticalFlagMeanK) {
		attrs["mean_k"] = c.Int(statisticalFlagMeanK)
	}
	if c.IsSet(statisticalFlagMultiplier) {
		attrs["multiplier"] = c.Float64(statisticalFlagMultiplier)
	}
	return runFilter(c, outlier.Statistical, attrs)
}

// RunAction runs whichever filter the config file selects.
func RunAction(c *cli.Context) error {
	if !c.IsSet(generalFlagConfig) {
		return errors.Errorf("the run command requires --%s", generalFlagConfig)
	}
	return runFilter(c, "", nil)
}

// runFilter loads the config file if any, applies flag overrides on top of it and filters the
// input. An empty filterType keeps the config file's filter.
func runFilter(c *cli.Context, filterType outlier.FilterType, attrs config.AttributeMap) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if filterType != "" {
		if current, err := outlier.ParseFilterType(cfg.Filter); err != nil || current != filterType {
			cfg.Attributes = config.AttributeMap{}
		}
		cfg.Filter = string(filterType)
	}
	if cfg.Attributes == nil {
		cfg.Attributes = config.AttributeMap{}
	}
	for k, v := range attrs {
		cfg.Attributes[k] = v
	}
	applyFlags(c, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	filterCfg, err := cfg.FilterConfig()
	if err != nil {
		return err
	}
	if cfg.Input == "" {
		return errors.New("an input file is required")
	}
	var format pointcloud.Format
	if cfg.Output != "" {
		if format, err = outputFormat(cfg); err != nil {
			return err
		}
	}

	logger, closeLogger := newLogger(c, cfg)
	defer closeLogger()

	points, err := pointcloud.NewFromFile(cfg.Input, logger)
	if err != nil {
		return err
	}
	res, err := coordinator.RunLocal(c.Context, points, filterCfg, cfg.Workers, coordinator.WithLogger(logger))
	if err != nil {
		return err
	}

	printf(c.App.Writer, "kept %d of %d points (removed %d) with %s filter",
		len(res.Survivors), points.Size(), res.Removed(points.Size()), filterCfg.Type)
	if res.Stats != nil {
		printf(c.App.Writer, "mean neighbor distance %g, stddev %g, threshold %g",
			res.Stats.Mean, res.Stats.StdDev, res.Stats.Threshold)
	}
	if cfg.Output == "" {
		return nil
	}

	kept, err := points.Subset(res.Survivors)
	if err != nil {
		return err
	}
	if err := pointcloud.WriteToFile(kept, cfg.Output, format); err != nil {
		return errors.Wrapf(err, "error writing %q", cfg.Output)
	}
	printf(c.App.Writer, "wrote %s", cfg.Output)
	return nil
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	path := c.String(generalFlagConfig)
	if path == "" {
		return &config.Config{}, nil
	}
	return config.Read(path, logging.NewBlankLogger("config"))
}

func applyFlags(c *cli.Context, cfg *config.Config) {
	if c.IsSet(generalFlagWorkers) {
		cfg.Workers = c.Int(generalFlagWorkers)
	}
	if c.IsSet(generalFlagParallelism) {
		cfg.Parallelism = c.Int(generalFlagParallelism)
	}
	if c.IsSet(generalFlagOutput) {
		cfg.Output = c.String(generalFlagOutput)
	}
	if c.IsSet(generalFlagFormat) {
		cfg.OutputFormat = c.String(generalFlagFormat)
	}
	if c.IsSet(generalFlagLogFile) {
		cfg.LogFile = c.String(generalFlagLogFile)
	}
	if c.Bool(generalFlagDebug) {
		cfg.LogLevel = logging.DEBUG.String()
	}
	if c.Args().Present() {
		cfg.Input = c.Args().First()
	}
}

func outputFormat(cfg *config.Config) (pointcloud.Format, error) {
	if cfg.OutputFormat != "" {
		return pointcloud.ParseFormat(cfg.OutputFormat)
	}
	return pointcloud.FormatFromPath(cfg.Output)
}

// newLogger returns a logger writing to the app's error writer and, if configured, a rotated log
// file. The returned func flushes and releases both.
func newLogger(c *cli.Context, cfg *config.Config) (logging.Logger, func()) {
	logger := logging.NewBlankLogger("pcfilter")
	logger.AddAppender(logging.NewWriterAppender(c.App.ErrWriter))
	level := logging.INFO
	if cfg.LogLevel != "" {
		// validated with the config
		level, _ = logging.LevelFromString(cfg.LogLevel)
	}
	logger.SetLevel(level)

	if cfg.LogFile == "" {
		return logger, func() { utils.UncheckedErrorFunc(logger.Sync) }
	}
	appender, closer := logging.NewFileAppender(cfg.LogFile)
	logger.AddAppender(appender)
	return logger, func() {
		utils.UncheckedErrorFunc(logger.Sync)
		utils.UncheckedErrorFunc(closer.Close)
	}
}
