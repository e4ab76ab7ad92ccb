package config

import (
	_ "embed"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/josephlewis42/pipesh/core/shell"
	"github.com/spf13/afero"
	"golang.org/x/sys/unix"
	"sigs.k8s.io/yaml"
)

var (
	//go:embed default/config.yaml
	defaultConfigData []byte
)

const (
	ConfigurationName = "config.yaml"
)

type Configuration struct {
	configFs afero.Fs

	PromptName  string `json:"prompt_name" validate:"required"`
	HistoryFile string `json:"history_file"`

	MaxArgs int `json:"max_args" validate:"gte=1"`
	MaxJobs int `json:"max_jobs" validate:"gte=1"`
	MaxVars int `json:"max_vars" validate:"gte=1"`

	KillSignal     string `json:"kill_signal" validate:"required,signal"`
	ReapIntervalMS int    `json:"reap_interval_ms" validate:"gte=1,lte=60000"`

	EventLog string `json:"event_log"`
	Color    bool   `json:"color"`
}

// Validate the configuration for basic semantic errors.
func (c *Configuration) Validate() error {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		return name
	})
	validate.RegisterValidation("signal", func(fl validator.FieldLevel) bool {
		_, err := shell.ParseSignal(fl.Field().String())
		return err == nil
	})

	return validate.Struct(c)
}

func (c *Configuration) fs() afero.Fs {
	return c.configFs
}

// DefaultSignal returns the signal kill sends when none is named.
func (c *Configuration) DefaultSignal() unix.Signal {
	sig, err := shell.ParseSignal(c.KillSignal)
	if err != nil {
		return unix.SIGKILL
	}
	return sig
}

// ReapInterval returns how often the reaper polls without a SIGCHLD.
func (c *Configuration) ReapInterval() time.Duration {
	return time.Duration(c.ReapIntervalMS) * time.Millisecond
}

// HistoryPath returns the history file location, relative paths are resolved
// against home. Returns an empty string when history isn't persisted.
func (c *Configuration) HistoryPath(home string) string {
	switch {
	case c.HistoryFile == "":
		return ""
	case filepath.IsAbs(c.HistoryFile):
		return c.HistoryFile
	default:
		return filepath.Join(home, c.HistoryFile)
	}
}

// OpenEventLog opens the event log in an append only state.
func (c *Configuration) OpenEventLog() (afero.File, error) {
	return c.fs().OpenFile(c.EventLog, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
}

// ReadEventLog opens the event log for reading.
func (c *Configuration) ReadEventLog() (afero.File, error) {
	return c.fs().OpenFile(c.EventLog, os.O_RDONLY, 0600)
}

func defaultConfig() *Configuration {
	var out Configuration
	if err := yaml.UnmarshalStrict(defaultConfigData, &out); err != nil {
		panic(err)
	}
	return &out
}

// Default returns the built-in configuration backed by fs.
func Default(fs afero.Fs) *Configuration {
	out := defaultConfig()
	out.configFs = fs
	return out
}
