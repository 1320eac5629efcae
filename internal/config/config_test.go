package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "data/tagfer.db", cfg.DBPath)
	assert.Equal(t, 5*time.Minute, cfg.VerificationTTL)
	assert.Equal(t, 10, cfg.SuggestPageSize)
	assert.Equal(t, "Business", cfg.DefaultProfile)
	assert.Equal(t, "data/media", cfg.Media.Dir)
	assert.Equal(t, 587, cfg.SMTP.Port)
	assert.Equal(t, "auto", cfg.Log.Format)
	assert.Empty(t, cfg.RedisURL)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("TAGFER_PORT", "9090")
	t.Setenv("TAGFER_APP_SECRET", "app-secret")
	t.Setenv("TAGFER_VERIFICATION_TTL", "90s")
	t.Setenv("TAGFER_TWILIO_ACCOUNT_SID", "AC123")
	t.Setenv("TAGFER_MEDIA_BASE_URL", "https://cdn.example.com/media")
	t.Setenv("TAGFER_LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "app-secret", cfg.AppSecret)
	assert.Equal(t, 90*time.Second, cfg.VerificationTTL)
	assert.Equal(t, "AC123", cfg.Twilio.AccountSID)
	assert.Equal(t, "https://cdn.example.com/media", cfg.Media.BaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_InvalidValue(t *testing.T) {
	t.Setenv("TAGFER_PORT", "not-a-number")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse env")
}

func TestValidate(t *testing.T) {
	valid := Config{
		AppSecret:       "secret",
		TokenSecret:     "0123456789abcdef",
		SuggestPageSize: 10,
		VerificationTTL: time.Minute,
	}
	require.NoError(t, valid.Validate())

	missing := valid
	missing.AppSecret = ""
	missing.TokenSecret = "short"
	err := missing.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TAGFER_APP_SECRET")
	assert.Contains(t, err.Error(), "TAGFER_TOKEN_SECRET")
}
