package backend_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbrock/servelaunch/internal/backend"
	_ "github.com/mbrock/servelaunch/internal/backend/all"
	"github.com/mbrock/servelaunch/internal/process"
	"github.com/mbrock/servelaunch/internal/process/fake"
)

func init() {
	backend.Register("fake", func(ctx context.Context) (process.ProcessBackend, error) {
		return fake.New(), nil
	})
}

func TestOpen_DefaultsToExec(t *testing.T) {
	b, err := backend.Open(context.Background(), "")
	require.NoError(t, err)
	defer b.Close()
	assert.Equal(t, "exec", b.Kind())
}

func TestOpen_Registered(t *testing.T) {
	b, err := backend.Open(context.Background(), "fake")
	require.NoError(t, err)
	assert.Equal(t, fake.Kind, b.Kind())
}

func TestOpen_Unknown(t *testing.T) {
	_, err := backend.Open(context.Background(), "docker")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown backend "docker"`)
}

func TestDefault_ReadsEnvironment(t *testing.T) {
	t.Setenv(backend.EnvBackend, "fake")
	b, err := backend.Default(context.Background())
	require.NoError(t, err)
	assert.Equal(t, fake.Kind, b.Kind())
}

func TestKinds(t *testing.T) {
	assert.Equal(t, []backend.Kind{"exec", "fake", "systemd"}, backend.Kinds())
}

func TestRegister_Panics(t *testing.T) {
	opener := func(ctx context.Context) (process.ProcessBackend, error) { return fake.New(), nil }
	assert.Panics(t, func() { backend.Register("", opener) })
	assert.Panics(t, func() { backend.Register(backend.KindAuto, opener) })
	assert.Panics(t, func() { backend.Register(backend.KindExec, opener) })
	assert.Panics(t, func() { backend.Register("other", nil) })
}
