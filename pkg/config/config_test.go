package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestFromViperDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg := fromViper(v)
	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, 5*time.Second, cfg.NOC.DeactivationTimeout)
	assert.False(t, cfg.NOC.AllowWardenReverify)
	assert.Equal(t, 2, cfg.Notifications.Workers)
	assert.Equal(t, "hostel-noc-api", cfg.Tracing.ServiceName)
}

func TestFromViperOverrides(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("NOC_DEACTIVATION_TIMEOUT", "750ms")
	v.Set("NOC_ALLOW_WARDEN_REVERIFY", true)
	v.Set("ALLOWED_ORIGINS", "https://hostel.example.edu, ,https://admin.example.edu")

	cfg := fromViper(v)
	assert.Equal(t, 750*time.Millisecond, cfg.NOC.DeactivationTimeout)
	assert.True(t, cfg.NOC.AllowWardenReverify)
	assert.Equal(t, []string{"https://hostel.example.edu", "https://admin.example.edu"}, cfg.CORS.AllowedOrigins)
}

func TestParseDurationFallsBack(t *testing.T) {
	assert.Equal(t, time.Minute, parseDuration("", time.Minute))
	assert.Equal(t, time.Minute, parseDuration("soon", time.Minute))
	assert.Equal(t, 3*time.Second, parseDuration("3s", time.Minute))
}
