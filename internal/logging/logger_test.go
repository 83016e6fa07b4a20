package logging

import (
	"os"
	"path/filepath"
	"testing"

	"dispatchboard/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_FileOutputCarriesIdentityFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")

	log, closer, err := New(
		config.LoggingConfig{Level: "debug", Output: "file", FilePath: path},
		config.AppConfig{Name: "dispatchboard", Environment: "test", Version: "1.2.3", TenantID: "acme"},
	)
	require.NoError(t, err)
	require.NotNil(t, closer)

	log.Info().Msg("hello")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	line := string(data)
	assert.Contains(t, line, `"app":"dispatchboard"`)
	assert.Contains(t, line, `"tenant":"acme"`)
	assert.Contains(t, line, `"version":"1.2.3"`)
}

func TestNew_NoTenantOmitsField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")

	log, closer, err := New(
		config.LoggingConfig{Output: "file", FilePath: path},
		config.AppConfig{Name: "dispatchboard", Environment: "test"},
	)
	require.NoError(t, err)

	log.Info().Msg("hello")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"tenant"`)
}

func TestNew_FileOutputRequiresPath(t *testing.T) {
	_, _, err := New(config.LoggingConfig{Output: "file"}, config.AppConfig{})
	assert.Error(t, err)
}
