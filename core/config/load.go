package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"sigs.k8s.io/yaml"
)

// Load loads the configuration from the directory. A directory without a
// configuration file yields the defaults.
func Load(path string) (*Configuration, error) {
	// If given the path to a config.yaml file, move back up a level.
	if filepath.Base(path) == ConfigurationName {
		path = filepath.Dir(path)
	}

	configFs, err := dirFs(path)
	if err != nil {
		return nil, err
	}
	return LoadFs(configFs)
}

// dirFs roots a filesystem at dir. The path is made absolute first, relative
// bases reject every name.
func dirFs(dir string) (afero.Fs, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	return afero.NewBasePathFs(afero.NewOsFs(), abs), nil
}

// LoadFs loads the configuration from the root of configFs. Fields missing
// from the file keep their default values.
func LoadFs(configFs afero.Fs) (*Configuration, error) {
	out := Default(configFs)

	configContents, err := afero.ReadFile(configFs, ConfigurationName)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return out, nil
	case err != nil:
		return nil, err
	}

	if err := yaml.UnmarshalStrict(configContents, out); err != nil {
		return nil, fmt.Errorf("%s: %w", ConfigurationName, err)
	}

	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", ConfigurationName, err)
	}

	return out, nil
}

// Initialize writes the default configuration into dir unless one is already
// present and returns the loaded result.
func Initialize(dir string, logger *log.Logger) (*Configuration, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}

	configFs, err := dirFs(dir)
	if err != nil {
		return nil, err
	}
	if err := initializeFs(configFs, logger); err != nil {
		return nil, err
	}

	return LoadFs(configFs)
}

func initializeFs(configFs afero.Fs, logger *log.Logger) error {
	exists, err := afero.Exists(configFs, ConfigurationName)
	if err != nil {
		return err
	}
	if exists {
		logger.Printf("%s already exists, skipping", ConfigurationName)
		return nil
	}

	logger.Printf("writing %s", ConfigurationName)
	return afero.WriteFile(configFs, ConfigurationName, defaultConfigData, 0600)
}
