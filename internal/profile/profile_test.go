package profile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbrock/servelaunch/internal/launch"
)

const sampleProfile = `
base_dir: /mnt/models
endpoint: http://0.0.0.0:9000
program: /opt/vllm/bin/python
flags: ["--swap-space", "4"]
log_dir: /var/log/servelaunch
log_mode: if-exists
backend: systemd
environment:
  CUDA_VISIBLE_DEVICES: "0,1"
`

func TestLoadAndApply(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleProfile), 0o644))

	p, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "if-exists", p.LogMode)
	assert.Equal(t, "systemd", p.Backend)
	assert.Equal(t, map[string]string{"CUDA_VISIBLE_DEVICES": "0,1"}, p.Environment)

	d := p.Apply(launch.BuiltinDefaults())
	assert.Equal(t, "/mnt/models", d.BaseDir)
	assert.Equal(t, "http://0.0.0.0:9000", d.Endpoint)
	assert.Equal(t, "/opt/vllm/bin/python", d.Program)
	assert.Equal(t, []string{"-m", "vllm.entrypoints.openai.api_server"}, d.ProgramArgs, "unset keys keep defaults")
	assert.Equal(t, []string{"--swap-space", "4"}, d.Flags)
	assert.Equal(t, "/var/log/servelaunch", d.LogDir)
	assert.Equal(t, launch.DefaultModelSize, d.ModelSize)

	cfg, err := launch.Resolve("", []string{"13"}, d)
	require.NoError(t, err)
	assert.Equal(t, "/mnt/models/llama-13b-hf", cfg.ModelPath)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "/var/log/servelaunch/launch.log", cfg.LogPath)
}

func TestParse_Empty(t *testing.T) {
	p, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, launch.BuiltinDefaults(), p.Apply(launch.BuiltinDefaults()))
}

func TestParse_EmptyFlagsClearDefaults(t *testing.T) {
	p, err := Parse([]byte("flags: []\n"))
	require.NoError(t, err)
	d := p.Apply(launch.BuiltinDefaults())
	assert.Empty(t, d.Flags)
}

func TestParse_Errors(t *testing.T) {
	for name, doc := range map[string]string{
		"unknown key":    "modle_dir: /x\n",
		"bad endpoint":   "endpoint: http://host:nope\n",
		"negative size":  "model_size: -3\n",
		"wrong type":     "model_size: big\n",
		"malformed yaml": "flags: [unclosed\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			require.ErrorIs(t, err, launch.ErrConfig)
		})
	}
}

func TestApply_NilProfile(t *testing.T) {
	var p *Profile
	assert.Equal(t, launch.BuiltinDefaults(), p.Apply(launch.BuiltinDefaults()))
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("SERVER_URL=http://gpu07:8500\nSL_PROFILE_TEST_KEEP=from-file\n"), 0o644))

	t.Setenv("SERVER_URL", "")
	os.Unsetenv("SERVER_URL")
	t.Setenv("SL_PROFILE_TEST_KEEP", "from-env")

	require.NoError(t, LoadEnvFile(path))
	assert.Equal(t, "http://gpu07:8500", os.Getenv("SERVER_URL"))
	assert.Equal(t, "from-env", os.Getenv("SL_PROFILE_TEST_KEEP"))
}

func TestLoadEnvFile_Missing(t *testing.T) {
	require.Error(t, LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")))
}
