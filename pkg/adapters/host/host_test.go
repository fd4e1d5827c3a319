package host_test

import (
	"bytes"
	"testing"

	"github.com/aretw0/chatflow/pkg/adapters/host"
	"github.com/aretw0/chatflow/pkg/ports"
	"github.com/aretw0/chatflow/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ ports.HostNotifier = host.Nop{}
	_ ports.HostNotifier = (*host.Writer)(nil)
	_ ports.HostNotifier = (*host.Recorder)(nil)
)

func TestWriter_PostsJSONLines(t *testing.T) {
	var buf bytes.Buffer
	w := host.NewWriter(&buf)

	require.True(t, w.Embedded())
	require.NoError(t, w.Post(protocol.Resize(600)))
	require.NoError(t, w.Post(protocol.State(true)))

	assert.Equal(t,
		"{\"type\":\"resize-iframe\",\"height\":600}\n{\"type\":\"widget-state\",\"isOpen\":true}\n",
		buf.String())
}

func TestNop(t *testing.T) {
	assert.False(t, host.Nop{}.Embedded())
	assert.NoError(t, host.Nop{}.Post(protocol.State(false)))
}
