package forge_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forge-lang/forge/forge"
)

func TestRunCapturesStdout(t *testing.T) {
	var out bytes.Buffer
	err := forge.Run(`say 1 + 2`, forge.Stdout(&out))
	require.NoError(t, err)
	assert.Equal(t, "3\n", out.String())
}

func TestLoadSurfacesTypeWarnings(t *testing.T) {
	p, err := forge.Load(`let x: int = "not an int"`)
	require.NoError(t, err)
	assert.NotEmpty(t, p.Warnings())
}

func TestServerDecoratorIsReportedNotExecuted(t *testing.T) {
	p, err := forge.Load(`
@server(port: 8080)
fn handle() {
  return "ok"
}
`)
	require.NoError(t, err)
	dec, err := p.ServerDecorator()
	require.NoError(t, err)
	require.NotNil(t, dec)
	assert.Equal(t, "server", dec.Name)
}
