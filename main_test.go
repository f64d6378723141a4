package main

import (
	"os"
	"path/filepath"
	"testing"

	"CamDetLoop/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func runFlags(t *testing.T, args ...string) (*config.Config, error) {
	t.Helper()
	var got *config.Config
	app := newApp(func(c *cli.Context, cfg *config.Config) error {
		got = cfg
		return nil
	})
	err := app.Run(append([]string{"camdet"}, args...))
	return got, err
}

func TestFlagsOverrideConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("model: from_file.tflite\ndetector:\n  numThreads: 2\n"), 0o644))

	cfg, err := runFlags(t, "--config", path, "--cameraId", "/dev/video2", "--frameWidth", "1280", "--frameHeight", "720", "--enableEdgeTPU")
	require.NoError(t, err)
	assert.Equal(t, "from_file.tflite", cfg.Model)
	assert.Equal(t, 2, cfg.Detector.NumThreads)
	assert.Equal(t, "/dev/video2", cfg.Camera.ID)
	assert.Equal(t, 1280, cfg.Camera.MainWidth)
	assert.Equal(t, 720, cfg.Camera.MainHeight)
	assert.True(t, cfg.Detector.EnableEdgeTPU)

	cfg, err = runFlags(t, "--config", path, "--model", "other.tflite", "--numThreads", "8")
	require.NoError(t, err)
	assert.Equal(t, "other.tflite", cfg.Model)
	assert.Equal(t, 8, cfg.Detector.NumThreads)
}

func TestMissingConfigUsesDefaults(t *testing.T) {
	cfg, err := runFlags(t, "--config", filepath.Join(t.TempDir(), "absent.yaml"), "--dev")
	require.NoError(t, err)
	assert.Equal(t, config.Default().Model, cfg.Model)
	assert.True(t, cfg.Log.Development)
}

func TestInvalidFlagRejected(t *testing.T) {
	_, err := runFlags(t, "--config", filepath.Join(t.TempDir(), "absent.yaml"), "--numThreads", "0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "numThreads")
}

func TestStreamWidth(t *testing.T) {
	cfg := config.Default()
	assert.Equal(t, 320, streamWidth(&cfg))
	cfg.Camera.Stream = "main"
	assert.Equal(t, 640, streamWidth(&cfg))
}
