package config

import (
	"testing"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	var c Config
	require.NoError(t, env.Parse(&c))

	assert.Equal(t, 400*time.Millisecond, c.OnboardingSingleDelay)
	assert.Equal(t, 800*time.Millisecond, c.OnboardingMultiDelay)
	assert.Equal(t, "redis", c.OnboardingStore)
	assert.Equal(t, 10*time.Second, c.OnboardingSubmitTimeout)
	assert.Empty(t, c.GetReplicaDSNs())
}

func TestParseOverrides(t *testing.T) {
	t.Setenv("ONBOARDING_SINGLE_DELAY", "1s")
	t.Setenv("ONBOARDING_STORE", "memory")
	t.Setenv("POSTGRESQL_REPLICA_HOSTS", "replica-a:6432,replica-b")

	var c Config
	require.NoError(t, env.Parse(&c))

	assert.Equal(t, time.Second, c.OnboardingSingleDelay)
	assert.Equal(t, "memory", c.OnboardingStore)

	dsns := c.GetReplicaDSNs()
	require.Len(t, dsns, 2)
	assert.Contains(t, dsns[0], "host=replica-a port=6432")
	assert.Contains(t, dsns[1], "host=replica-b port=5432")
}

func TestValidate(t *testing.T) {
	c := Config{OnboardingStore: "redis", OTELSampleRatio: 0.5}
	assert.Error(t, c.Validate())

	c.JWTSecret = "secret"
	assert.NoError(t, c.Validate())

	c.OnboardingStore = "sqlite"
	assert.Error(t, c.Validate())

	c.OnboardingStore = "memory"
	c.OTELSampleRatio = 2
	assert.Error(t, c.Validate())
}

func TestRabbitMQURL(t *testing.T) {
	c := Config{
		RabbitMQUsername: "guest",
		RabbitMQPassword: "pw",
		RabbitMQAddr:     "mq",
		RabbitMQPort:     "5672",
		RabbitMQVhost:    "/",
	}
	assert.Equal(t, "amqp://guest:pw@mq:5672/", c.GetRabbitMQURL())
}
