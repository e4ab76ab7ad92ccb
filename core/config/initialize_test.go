package config

import (
	"io/ioutil"
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInitialize(t *testing.T) {
	tempDir := t.TempDir()
	if _, err := Initialize(tempDir, log.New(ioutil.Discard, "", 0)); err != nil {
		t.Fatal(err)
	}

	// Check that the config is valid
	cfg, err := Load(tempDir)
	if err != nil {
		t.Fatal(err)
	}
	assert.Nil(t, cfg.Validate())

	t.Run("Load config.yaml path", func(t *testing.T) {
		cfg, err := Load(filepath.Join(tempDir, ConfigurationName))
		assert.Nil(t, err)
		assert.NotNil(t, cfg)
	})

	t.Run("OpenEventLog", func(t *testing.T) {
		cfg.EventLog = "events.log"
		fd, err := cfg.OpenEventLog()
		assert.Nil(t, err)
		fd.Close()

		assert.FileExists(t, filepath.Join(tempDir, "events.log"))
	})

	t.Run("Initialize keeps existing config", func(t *testing.T) {
		path := filepath.Join(tempDir, ConfigurationName)
		assert.Nil(t, os.WriteFile(path, []byte("prompt_name: mine\n"), 0600))

		cfg, err := Initialize(tempDir, log.New(ioutil.Discard, "", 0))
		assert.Nil(t, err)
		assert.Equal(t, "mine", cfg.PromptName)
	})
}

func TestInitialize_newDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "config")

	cfg, err := Initialize(dir, log.New(ioutil.Discard, "", 0))
	assert.Nil(t, err)
	assert.NotNil(t, cfg)
	assert.FileExists(t, filepath.Join(dir, ConfigurationName))
}
