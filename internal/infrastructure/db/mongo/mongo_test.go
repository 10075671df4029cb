package mongo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigClientOptions_Defaults(t *testing.T) {
	opts := Config{URI: "mongodb://mongo:27017", Database: "portal"}.clientOptions()

	require.NoError(t, opts.Validate())
	require.NotNil(t, opts.AppName)
	assert.Equal(t, defaultAppName, *opts.AppName)
	require.NotNil(t, opts.MaxPoolSize)
	assert.Equal(t, uint64(defaultMaxPoolSize), *opts.MaxPoolSize)
	require.NotNil(t, opts.ServerSelectionTimeout)
	assert.Equal(t, defaultTimeout, *opts.ServerSelectionTimeout)
	require.NotNil(t, opts.RetryWrites)
	assert.True(t, *opts.RetryWrites)
}

func TestConfigClientOptions_Overrides(t *testing.T) {
	opts := Config{
		URI:         "mongodb://mongo:27017",
		AppName:     "portal-eu",
		MaxPoolSize: 4,
		Timeout:     3 * time.Second,
	}.clientOptions()

	assert.Equal(t, "portal-eu", *opts.AppName)
	assert.Equal(t, uint64(4), *opts.MaxPoolSize)
	assert.Equal(t, 3*time.Second, *opts.ServerSelectionTimeout)
}
