package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbrock/servelaunch/internal/backend"
	"github.com/mbrock/servelaunch/internal/profile"
)

func TestKindList(t *testing.T) {
	assert.Equal(t, "exec, systemd, auto", kindList())
}

func TestOpenLaunchBackend_Precedence(t *testing.T) {
	ctx := context.Background()
	t.Cleanup(func() { backendFlag = "" })

	t.Setenv(backend.EnvBackend, "exec")
	b, err := openLaunchBackend(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "exec", b.Kind())
	require.NoError(t, b.Close())

	t.Setenv(backend.EnvBackend, "bogus")
	_, err = openLaunchBackend(ctx, nil)
	require.Error(t, err, "environment applies without profile or flag")

	b, err = openLaunchBackend(ctx, &profile.Profile{Backend: "exec"})
	require.NoError(t, err, "profile wins over environment")
	assert.Equal(t, "exec", b.Kind())

	backendFlag = "also-bogus"
	_, err = openLaunchBackend(ctx, &profile.Profile{Backend: "exec"})
	require.ErrorContains(t, err, "also-bogus", "flag wins over profile")
}
