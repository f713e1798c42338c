package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesFileAndDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
database:
  host: db.internal
  name: telemed_test
consultation:
  reject_policy: cancel
emergency:
  recent_window: 6h
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "cancel", cfg.Consultation.RejectPolicy)
	assert.Equal(t, 6*time.Hour, cfg.Emergency.RecentWindow)
	assert.Equal(t, 5, cfg.Consultation.DefaultMaxConcurrent)
	assert.Equal(t, []string{"consultation", "referral", "emergency", "patient_request"}, cfg.Relationship.ReestablishMethods)
	assert.Contains(t, cfg.Database.DSN(), "dbname=telemed_test")
}

func TestLoadEnvironmentOverridesFile(t *testing.T) {
	path := writeConfig(t, `
database:
  host: from-file
consultation:
  default_max_concurrent: 3
`)
	t.Setenv("TELEMED_DATABASE_HOST", "from-env")
	t.Setenv("TELEMED_CONSULTATION_DEFAULT_MAX_CONCURRENT", "8")
	t.Setenv("TELEMED_RELATIONSHIP_REESTABLISH_METHODS", "consultation,doctor_initiated")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Database.Host)
	assert.Equal(t, 8, cfg.Consultation.DefaultMaxConcurrent)
	assert.Equal(t, []string{"consultation", "doctor_initiated"}, cfg.Relationship.ReestablishMethods)
}

func TestLoadRejectsUnknownRejectPolicy(t *testing.T) {
	path := writeConfig(t, `
consultation:
  reject_policy: ignore
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reject_policy")
}

func TestLoadRejectsUnknownReestablishMethod(t *testing.T) {
	path := writeConfig(t, `
relationship:
  reestablish_methods: [consultation, telepathy]
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telepathy")
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yml"))
	assert.Error(t, err)
}
