package configutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type testConfig struct {
	BaseUrl string    `json:"base_url"`
	Workers int       `json:"workers"`
	Fetch   testFetch `json:"fetch"`
	Markers []string  `json:"markers"`
}

type testFetch struct {
	DelayMs   int `json:"delay_ms"`
	TimeoutMs int `json:"timeout_ms"`
}

func writeFile(t *testing.T, path, contents string) {
	err := os.WriteFile(path, []byte(contents), 0600)
	if err != nil {
		t.Fatal(err)
	}
}

func TestReadConfigLocalOverride(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "config.json5"), `{
		// comments are allowed
		base_url: "https://www.goodreads.com",
		workers: 2,
		fetch: { delay_ms: 2000, timeout_ms: 30000 },
	}`)
	writeFile(t, filepath.Join(dir, "config.local.json5"), `{
		workers: 8,
		fetch: { delay_ms: 500 },
	}`)

	cfg, err := ReadConfig[testConfig](filepath.Join(dir, "config.json5"))
	require.NoError(t, err)
	require.Equal(t, "https://www.goodreads.com", cfg.BaseUrl)
	require.Equal(t, 8, cfg.Workers)
	require.Equal(t, 500, cfg.Fetch.DelayMs)
	require.Equal(t, 30000, cfg.Fetch.TimeoutMs)
}

func TestReadConfigMissing(t *testing.T) {
	_, err := ReadConfig[testConfig](filepath.Join(t.TempDir(), "config.json5"))
	require.True(t, os.IsNotExist(err))
}

func TestReadWithDefaults(t *testing.T) {
	defaults := testConfig{
		BaseUrl: "https://www.goodreads.com",
		Workers: 4,
		Fetch:   testFetch{DelayMs: 2000, TimeoutMs: 30000},
		Markers: []string{"captcha"},
	}

	dir := t.TempDir()
	cfg, err := ReadWithDefaults(filepath.Join(dir, "config.json5"), defaults)
	require.NoError(t, err)
	require.Equal(t, defaults, cfg)

	writeFile(t, filepath.Join(dir, "config.json5"), `{ workers: 1, fetch: { timeout_ms: 100 } }`)
	cfg, err = ReadWithDefaults(filepath.Join(dir, "config.json5"), defaults)
	require.NoError(t, err)
	require.Equal(t, 1, cfg.Workers)
	require.Equal(t, 2000, cfg.Fetch.DelayMs)
	require.Equal(t, 100, cfg.Fetch.TimeoutMs)
	require.Equal(t, []string{"captcha"}, cfg.Markers)
	require.Equal(t, "https://www.goodreads.com", cfg.BaseUrl)
}
