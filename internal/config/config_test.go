package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"github.com/Guilhem-Bonnet/prediction-runner/internal/domain"
)

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load(New(), "")
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoad_EnvOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("PREDICT_SERVER_URL", "https://predict.example.com")
	t.Setenv("PREDICT_POLL_INTERVAL", "500ms")
	t.Setenv("PREDICT_PROGRESS_CAP", "0.8")
	t.Setenv("PREDICT_LOG_LEVEL", "debug")

	cfg, err := Load(New(), "")
	require.NoError(t, err)
	require.Equal(t, "https://predict.example.com", cfg.ServerURL)
	require.Equal(t, 500*time.Millisecond, cfg.PollInterval)
	require.InDelta(t, 0.8, cfg.ProgressCap, 1e-9)
	require.Equal(t, zerolog.DebugLevel, cfg.Level())
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("PREDICT_ADDR=127.0.0.1:9999\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("PREDICT_ADDR") })

	cfg, err := Load(New(), "")
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9999", cfg.Addr)
}

func TestLoad_ConfigFileAndFlags(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	file := filepath.Join(dir, "predict.yaml")
	require.NoError(t, os.WriteFile(file, []byte("db_path: /tmp/other.db\nsubmit_rate: 2.5\n"), 0o600))

	v := New()
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("server-url", Default().ServerURL, "")
	require.NoError(t, BindFlags(v, flags))
	require.NoError(t, flags.Parse([]string{"--server-url", "http://10.0.0.1:8000"}))

	cfg, err := Load(v, file)
	require.NoError(t, err)
	require.Equal(t, "/tmp/other.db", cfg.DBPath)
	require.InDelta(t, 2.5, cfg.SubmitRate, 1e-9)
	require.Equal(t, "http://10.0.0.1:8000", cfg.ServerURL)
}

func TestLoad_Invalid(t *testing.T) {
	chdir(t, t.TempDir())

	cases := map[string]string{
		"PREDICT_SERVER_URL":   "not a url",
		"PREDICT_PROGRESS_CAP": "1.5",
		"PREDICT_LOG_LEVEL":    "verbose",
		"PREDICT_HTTP_TIMEOUT": "0s",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := Load(New(), "")
			require.Error(t, err)
		})
	}
}

func TestLevel_Fallback(t *testing.T) {
	require.Equal(t, zerolog.InfoLevel, Config{}.Level())
	require.Equal(t, zerolog.WarnLevel, Config{LogLevel: "warn"}.Level())
}

func TestOverlay(t *testing.T) {
	base := domain.DefaultSettings()
	require.Equal(t, base, Config{}.Overlay(base))

	got := Config{PollInterval: 750 * time.Millisecond, EstimatedDuration: 2 * time.Minute, ProgressCap: 0.5}.Overlay(base)
	require.Equal(t, int64(750), got.PollIntervalMs)
	require.Equal(t, 120, got.EstimatedDurationSec)
	require.InDelta(t, 0.5, got.ProgressCap, 1e-9)
	require.Equal(t, base.DefaultMode, got.DefaultMode)
}

// chdir changes the working directory for the duration of the test
// (stand-in for testing.T.Chdir, which requires Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatal(err)
		}
	})
}
