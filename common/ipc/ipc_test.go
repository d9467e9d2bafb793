package ipc

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sample = GlobalsResponse{
	Globals: []Global{
		{Name: 1, Interface: "wl_compositor", Version: 4},
		{Name: 12, Interface: "wl_drm", Version: 2},
	},
	GlobalsFound: 2,
}

func TestEncodeText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, OutputText, sample))
	assert.Equal(t, "NAME  INTERFACE      VERSION\n1     wl_compositor  4\n12    wl_drm         2\n", buf.String())
}

func TestEncodeJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, OutputJSON, sample))
	assert.JSONEq(t, `{"globals":[{"name":1,"interface":"wl_compositor","version":4},{"name":12,"interface":"wl_drm","version":2}],"globals_found":2}`, buf.String())
}

func TestEncodeYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, OutputYAML, FormatsResponse{Device: "/dev/dri/card0", Formats: []string{"XRGB8888"}, Capabilities: 1}))
	assert.YAMLEq(t, "device: /dev/dri/card0\nformats: [XRGB8888]\ncapabilities: 1\n", buf.String())
}

func TestParseOutput(t *testing.T) {
	o, err := ParseOutput("JSON")
	require.NoError(t, err)
	assert.Equal(t, OutputJSON, o)

	_, err = ParseOutput("xml")
	assert.Error(t, err)
}
