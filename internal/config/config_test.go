package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/superpool/dispute-service/internal/domain"
)

func setThresholdEnv(t *testing.T) {
	t.Helper()
	t.Setenv("ESCALATION_THRESHOLD_CRITICAL", "1h")
	t.Setenv("ESCALATION_THRESHOLD_HIGH", "4h")
	t.Setenv("ESCALATION_THRESHOLD_MEDIUM", "24h")
	t.Setenv("ESCALATION_THRESHOLD_LOW", "72h")
}

func TestLoadReadsEscalationThresholds(t *testing.T) {
	setThresholdEnv(t)
	t.Setenv("NOTIFY_ADMINS", "ops@superpool.test, lead@superpool.test")
	t.Setenv("AUTH_MERCHANT_KEYS", "merch-1=$2a$10$abc")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.Escalation.Enabled)
	assert.Equal(t, time.Hour, cfg.Escalation.Thresholds[domain.TicketPriorityCritical])
	assert.Equal(t, 72*time.Hour, cfg.Escalation.Thresholds[domain.TicketPriorityLow])
	assert.Equal(t, []string{"ops@superpool.test", "lead@superpool.test"}, cfg.Notification.Admins)
	assert.Equal(t, "$2a$10$abc", cfg.Auth.MerchantKeys["merch-1"])
	assert.Equal(t, 587, cfg.Notification.SMTPPort)
}

func TestLoadRequiresThresholdsWhenEnabled(t *testing.T) {
	t.Setenv("ESCALATION_THRESHOLD_CRITICAL", "1h")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")
}

func TestLoadRejectsMisorderedThresholds(t *testing.T) {
	setThresholdEnv(t)
	t.Setenv("ESCALATION_THRESHOLD_HIGH", "30m")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be greater than")
}

func TestLoadSkipsThresholdsWhenDisabled(t *testing.T) {
	t.Setenv("ESCALATION_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.Escalation.Enabled)
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	setThresholdEnv(t)
	t.Setenv("ESCALATION_THRESHOLD_LOW", "three days")
	_, err := Load()
	assert.ErrorContains(t, err, "ESCALATION_THRESHOLD_LOW")

	setThresholdEnv(t)
	t.Setenv("AUTH_MERCHANT_KEYS", "merch-1")
	_, err = Load()
	assert.ErrorContains(t, err, "AUTH_MERCHANT_KEYS")
}

func TestLoadPolicyFileWithEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
thresholds:
  critical: 30m
  high: 2h
  medium: 12h
  low: 48h
`), 0o600))
	t.Setenv("ESCALATION_POLICY_FILE", path)
	t.Setenv("ESCALATION_THRESHOLD_LOW", "96h")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, cfg.Escalation.Thresholds[domain.TicketPriorityCritical])
	assert.Equal(t, 96*time.Hour, cfg.Escalation.Thresholds[domain.TicketPriorityLow])
}

func TestParsePolicyRejectsUnknownPriority(t *testing.T) {
	_, err := ParsePolicy([]byte("thresholds:\n  urgent: 1h\n"))
	assert.ErrorContains(t, err, "unknown priority")

	_, err = ParsePolicy([]byte("thresholds:\n  low: soon\n"))
	assert.ErrorContains(t, err, "LOW")
}

func TestJWTSecretDefaultsOnlyInDevelopment(t *testing.T) {
	setThresholdEnv(t)
	t.Setenv("AUTH_JWT_SECRET", "")

	t.Setenv("APP_ENV", "development")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, devJWTSecret, cfg.Auth.JWTSecret)

	t.Setenv("APP_ENV", "production")
	_, err = Load()
	assert.ErrorContains(t, err, "AUTH_JWT_SECRET is required")

	t.Setenv("AUTH_JWT_SECRET", "prod-secret")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, "prod-secret", cfg.Auth.JWTSecret)
}

func TestTicketLockTTLIsIndependentOfScanLock(t *testing.T) {
	setThresholdEnv(t)
	t.Setenv("ESCALATION_LOCK_TTL", "2m")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, cfg.Escalation.LockTTL)
	assert.Equal(t, 10*time.Second, cfg.Locks.TicketTTL)

	t.Setenv("TICKET_LOCK_TTL", "3s")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, cfg.Locks.TicketTTL)
	assert.Equal(t, 2*time.Minute, cfg.Escalation.LockTTL)
}

func TestLoggerConfigFromEnv(t *testing.T) {
	setThresholdEnv(t)
	t.Setenv("APP_NAME", "disputes")
	t.Setenv("LOG_FORMAT", "console")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "console", cfg.Logger.Format)
	assert.Equal(t, "disputes", cfg.Logger.Service)

	t.Setenv("LOG_FORMAT", "xml")
	_, err = Load()
	assert.ErrorContains(t, err, "LOG_FORMAT")
}
