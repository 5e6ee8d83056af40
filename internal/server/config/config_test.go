package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultsValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 150000, cfg.Engine.BatchNodes)
	assert.Equal(t, 15, cfg.Engine.StreamDepth)
}

func TestLoadYAMLWithEnvOverride(t *testing.T) {
	t.Setenv("SHOGI_TEST_EVAL", "/opt/eval")
	t.Setenv("ENGINE_THREADS", "4")
	t.Setenv("USI_GO_TIMEOUT", "2.5")

	path := writeFile(t, "shogi.yaml", `
server:
  port: 9000
engine:
  command: /opt/engine/yaneuraou --quiet
  eval_dir: ${SHOGI_TEST_EVAL}
  threads: 2
  boot_timeout: 3s
storage:
  path: /var/lib/shogi.db
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host, "default kept")
	assert.Equal(t, "/opt/eval", cfg.Engine.EvalDir)
	assert.Equal(t, 4, cfg.Engine.Threads, "environment wins over file")
	assert.Equal(t, 3*time.Second, cfg.Engine.BootTimeout)
	assert.Equal(t, 2500*time.Millisecond, cfg.Engine.SearchTimeout)
	assert.Equal(t, "/var/lib/shogi.db", cfg.Storage.Path)

	opts := cfg.Engine.ProcessOptions("batch", zerolog.Nop())
	assert.Equal(t, "batch", opts.Name)
	assert.Equal(t, "/opt/engine/yaneuraou", opts.Path)
	assert.Equal(t, []string{"--quiet"}, opts.Args)
	assert.Equal(t, 4, opts.Threads)

	sc := cfg.Engine.SessionConfig()
	assert.Equal(t, 150000, sc.BatchNodes)
	assert.Equal(t, 2500*time.Millisecond, sc.SearchTimeout)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		yaml string
	}{
		{"bad port", map[string]string{"API_PORT": "0"}, ""},
		{"unparseable number", map[string]string{"BATCH_NODES": "many"}, ""},
		{"short secret", map[string]string{"AUTH_JWT_SECRET": "short"}, ""},
		{"unknown level", map[string]string{"LOG_LEVEL": "loud"}, ""},
		{"blank command", map[string]string{"USI_CMD": "  "}, ""},
		{"bad duration", map[string]string{"USI_BOOT_TIMEOUT": "soon"}, ""},
		{"bad yaml", nil, "engine: [unclosed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := ""
			if tt.yaml != "" {
				path = writeFile(t, "bad.yaml", tt.yaml)
			}
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadDotEnv(t *testing.T) {
	require.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "absent.env")))

	path := writeFile(t, ".env", "SHOGI_TEST_DOTENV=loaded\n")
	t.Cleanup(func() { os.Unsetenv("SHOGI_TEST_DOTENV") })
	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "loaded", os.Getenv("SHOGI_TEST_DOTENV"))
}

func TestZerologLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, LogConfig{Level: "debug"}.ZerologLevel())
	assert.Equal(t, zerolog.InfoLevel, LogConfig{Level: "nonsense"}.ZerologLevel())
}
