package config

import (
	"bytes"
	"io"

	"github.com/a8m/envsubst"
	"github.com/pkg/errors"
	"github.com/yosuke-furukawa/json5/encoding/json5"

	"go.viam.com/pcfilter/logging"
)

// Read reads a config from the given file. Environment variables such as ${HOME} are expanded
// before parsing.
func Read(filePath string, logger logging.Logger) (*Config, error) {
	buf, err := envsubst.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	return FromReader(filePath, bytes.NewReader(buf), logger)
}

// FromReader reads a config from the given reader and specifies
// where, if applicable, the file the reader originated from.
func FromReader(originalPath string, r io.Reader, logger logging.Logger) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	cfg := Config{
		ConfigFilePath: originalPath,
	}
	if err := json5.Unmarshal(raw, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to decode Config from json5")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "error validating config %q", originalPath)
	}
	logger.Debugw("read config", "path", originalPath, "filter", cfg.Filter, "workers", cfg.Workers)
	return &cfg, nil
}
