package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/pcfilter/logging"
	"go.viam.com/pcfilter/outlier"
)

const statisticalJSON5 = `{
	// trailing commas and comments are fine
	filter: "statistical",
	workers: 4,
	parallelism: 2,
	input: "${PCFILTER_TEST_DIR}/scan.pcd",
	output: "clean.las",
	output_format: "las",
	attributes: {
		mean_k: 8,
		multiplier: -0.5,
	},
}`

func TestRead(t *testing.T) {
	logger := logging.NewTestLogger(t)
	dir := t.TempDir()
	t.Setenv("PCFILTER_TEST_DIR", dir)

	fn := filepath.Join(dir, "pcfilter.json5")
	test.That(t, os.WriteFile(fn, []byte(statisticalJSON5), 0o600), test.ShouldBeNil)

	cfg, err := Read(fn, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.ConfigFilePath, test.ShouldEqual, fn)
	test.That(t, cfg.Workers, test.ShouldEqual, 4)
	test.That(t, cfg.Input, test.ShouldEqual, dir+"/scan.pcd")
	test.That(t, cfg.OutputFormat, test.ShouldEqual, "las")
	test.That(t, cfg.Attributes.Has("mean_k"), test.ShouldBeTrue)
	test.That(t, cfg.Attributes.Has("k"), test.ShouldBeFalse)

	filterCfg, err := cfg.FilterConfig()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, filterCfg.Type, test.ShouldEqual, outlier.Statistical)
	test.That(t, filterCfg.Parallelism, test.ShouldEqual, 2)
	test.That(t, filterCfg.Radius, test.ShouldBeNil)
	test.That(t, *filterCfg.Statistical, test.ShouldResemble, outlier.StatisticalConfig{MeanK: 8, Multiplier: -0.5})

	_, err = Read(filepath.Join(dir, "missing.json5"), logger)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestFromReaderDefaults(t *testing.T) {
	cfg, err := FromReader("", strings.NewReader(`{filter: "ror", attributes: {k: "2", radius: 3}}`), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Workers, test.ShouldEqual, 1)
	test.That(t, cfg.Parallelism, test.ShouldEqual, 0)

	filterCfg, err := cfg.FilterConfig()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, filterCfg.Type, test.ShouldEqual, outlier.Radius)
	test.That(t, *filterCfg.Radius, test.ShouldResemble, outlier.RadiusConfig{K: 2, Radius: 3})
}

func TestFromReaderErrors(t *testing.T) {
	logger := logging.NewTestLogger(t)
	for _, tc := range []struct {
		name  string
		input string
		field string
	}{
		{"unknown filter", `{filter: "median"}`, "filter"},
		{"unknown attribute", `{filter: "radius", attributes: {k: 2, radius: 1, knn: 3}}`, "attributes"},
		{"bad attribute type", `{filter: "radius", attributes: {k: "two", radius: 1}}`, "attributes"},
		{"missing attributes", `{filter: "statistical"}`, "mean_k"},
		{"zero radius", `{filter: "radius", attributes: {k: 2, radius: 0}}`, "radius"},
		{"negative workers", `{filter: "radius", workers: -2, attributes: {k: 2, radius: 1}}`, "workers"},
		{"negative parallelism", `{filter: "radius", parallelism: -1, attributes: {k: 2, radius: 1}}`, "parallelism"},
		{"bad format", `{filter: "radius", output_format: "ply", attributes: {k: 2, radius: 1}}`, "output_format"},
		{"bad log level", `{filter: "radius", log_level: "loud", attributes: {k: 2, radius: 1}}`, "log_level"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := FromReader("bad.json5", strings.NewReader(tc.input), logger)
			test.That(t, err, test.ShouldNotBeNil)
			var cfgErr *outlier.ConfigurationError
			test.That(t, errors.As(err, &cfgErr), test.ShouldBeTrue)
			test.That(t, cfgErr.Field, test.ShouldEqual, tc.field)
			test.That(t, err.Error(), test.ShouldContainSubstring, `error validating config "bad.json5"`)
		})
	}

	cfg, err := FromReader("", strings.NewReader(`{workers: 2, attributes: {k: 3}}`), logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Workers, test.ShouldEqual, 2)
	_, err = cfg.FilterConfig()
	test.That(t, outlier.IsConfigurationError(err), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "unknown filter type")

	_, err = FromReader("", strings.NewReader(`{filter: `), logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, outlier.IsConfigurationError(err), test.ShouldBeFalse)
	test.That(t, err.Error(), test.ShouldContainSubstring, "failed to decode")
}
