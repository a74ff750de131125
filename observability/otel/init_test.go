package otel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
	require.NotNil(t, Tracer())
}

func TestInitRequiresServiceName(t *testing.T) {
	_, err := Init(context.Background(), Config{Endpoint: "localhost:4318"})
	require.Error(t, err)
}

func TestParseHeaders(t *testing.T) {
	got := ParseHeaders(" api-key = abc ,broken, =x,team=lend")
	require.Equal(t, map[string]string{"api-key": "abc", "team": "lend"}, got)
}
