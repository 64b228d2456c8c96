package configutil

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Name    string   `json:"name"`
	Port    int      `json:"port"`
	Tickers []string `json:"tickers"`
}

func TestReadConfigMergesLocal(t *testing.T) {
	dir := t.TempDir()

	err := os.WriteFile(filepath.Join(dir, "app.json5"), []byte(`{
		// comments are allowed
		name: "base",
		port: 1,
		tickers: ["AAPL"],
	}`), 0600)
	require.NoError(t, err)
	err = os.WriteFile(filepath.Join(dir, "app.local.json5"), []byte(`{port: 2}`), 0600)
	require.NoError(t, err)

	cfg, err := ReadConfig[testConfig](filepath.Join(dir, "app.json5"))
	require.NoError(t, err)
	require.Equal(t, "base", cfg.Name)
	require.Equal(t, 2, cfg.Port)
	require.Equal(t, []string{"AAPL"}, cfg.Tickers)
}

func TestReadConfigNotFound(t *testing.T) {
	_, err := ReadConfig[testConfig](filepath.Join(t.TempDir(), "missing.json5"))
	require.True(t, errors.Is(err, ErrNotFound))
	require.True(t, errors.Is(err, os.ErrNotExist))
}

func TestLayers(t *testing.T) {
	cases := []struct {
		in       string
		expected []string
	}{
		{in: "config.json5", expected: []string{"config.json5", "config.local.json5"}},
		{in: "dir/a.b.json", expected: []string{"dir/a.b.json", "dir/a.b.local.json"}},
		{in: "noext", expected: []string{"noext", "noext.local"}},
	}
	for _, test := range cases {
		require.Equal(t, test.expected, Layers(test.in))
	}
}

func TestReadConfigLocalOnly(t *testing.T) {
	dir := t.TempDir()
	err := os.WriteFile(filepath.Join(dir, "app.local.json5"), []byte(`{name: "local"}`), 0600)
	require.NoError(t, err)

	cfg, err := ReadConfig[testConfig](filepath.Join(dir, "app.json5"))
	require.NoError(t, err)
	require.Equal(t, "local", cfg.Name)
}

func TestReadConfigParseError(t *testing.T) {
	dir := t.TempDir()
	err := os.WriteFile(filepath.Join(dir, "app.json5"), []byte(`{name: `), 0600)
	require.NoError(t, err)

	_, err = ReadConfig[testConfig](filepath.Join(dir, "app.json5"))
	require.Error(t, err)
	require.False(t, errors.Is(err, ErrNotFound))
}

func TestReadRecursively(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0755))
	err := os.WriteFile(filepath.Join(root, "app.json5"), []byte(`{port: 7}`), 0600)
	require.NoError(t, err)

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(nested))
	t.Cleanup(func() { os.Chdir(wd) })

	cfg, err := ReadRecursively[testConfig]("app.json5")
	require.NoError(t, err)
	require.Equal(t, 7, cfg.Port)

	_, err = ReadRecursively[testConfig]("missing-everywhere.json5")
	require.ErrorIs(t, err, ErrNotFound)
}
