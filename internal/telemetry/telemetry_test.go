package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := Setup(context.Background(), "", "learnhub-wallet", "test")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestHasScheme(t *testing.T) {
	assert.True(t, hasScheme("http://collector:4318"))
	assert.True(t, hasScheme("https://collector"))
	assert.False(t, hasScheme("collector:4318"))
}
