package launch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommand(t *testing.T) {
	d := BuiltinDefaults()
	d.BaseDir = "/data/models"
	cfg, err := Resolve("", []string{"13", "2"}, d)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"python3", "-m", "vllm.entrypoints.openai.api_server",
		"--model", "/data/models/llama-13b-hf",
		"--tensor-parallel-size", "2",
		"--host", "10.198.31.25",
		"--port", "8000",
		"--swap-space", "16", "--disable-log-requests", "--trust-remote-code",
	}, Command(cfg))
}

func TestCommand_Deterministic(t *testing.T) {
	d := BuiltinDefaults()
	a, err := Resolve("http://gpu01:8100", []string{"30", "4"}, d)
	require.NoError(t, err)
	b, err := Resolve("http://gpu01:8100", []string{"30", "4"}, d)
	require.NoError(t, err)

	assert.Equal(t, Command(a), Command(b))
	assert.Equal(t, CommandLine(Command(a)), CommandLine(Command(b)))
}

func TestCommandLine_Quoting(t *testing.T) {
	assert.Equal(t, "python3 --model /m/llama-7b-hf --port 8000",
		CommandLine([]string{"python3", "--model", "/m/llama-7b-hf", "--port", "8000"}))
	assert.Equal(t, `run 'two words' '' 'it'\''s' 'a$b'`,
		CommandLine([]string{"run", "two words", "", "it's", "a$b"}))
}
