package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/aescanero/patchwork/internal/application/components"
	"github.com/aescanero/patchwork/internal/application/manager"
	"github.com/aescanero/patchwork/internal/config"
	"github.com/aescanero/patchwork/pkg/adapters/transport/memory"
	"github.com/aescanero/patchwork/pkg/message"
	"github.com/aescanero/patchwork/pkg/module"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const memorySettings = `
manager:
  name: http
  config:
    http_addr: 127.0.0.1:0
    grpc_addr: 127.0.0.1:0
    refresh_interval: 50ms
    directory:
      backend: memory
executor:
  name: pool
  config:
    size: 2
    routes:
      jobs: echo
modules:
  status:
    name: status-store
    config:
      backend: memory
      interval: 50ms
publisher:
  name: memory
subscriber:
  name: memory
  config:
    routes: [jobs]
`

func TestNew_MemoryWorkerEndToEnd(t *testing.T) {
	settings, err := config.Parse([]byte(memorySettings))
	require.NoError(t, err)

	bus := memory.NewBus(8)
	w, err := New(settings, components.Builtin(), zap.NewNop(), WithBus(bus), WithID("w-e2e"))
	require.NoError(t, err)

	out := runWorker(context.Background(), w)
	waitRunning(t, w)

	snap := w.Snapshot()
	assert.Equal(t, "w-e2e", snap.WorkerID)
	assert.Len(t, snap.Components, 5)
	assert.True(t, snap.Healthy())

	// the status store and the manager's directory share the memory backend
	mgr, ok := w.components.Manager.(*manager.Manager)
	require.True(t, ok)
	resp, err := http.Get(fmt.Sprintf("http://%s/workers/w-e2e", mgr.HTTPAddr()))
	require.NoError(t, err)
	var stored module.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stored))
	require.NoError(t, resp.Body.Close())
	http.DefaultClient.CloseIdleConnections()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "w-e2e", stored.WorkerID)

	msg, err := message.New("jobs", json.RawMessage(`{"n":1}`))
	require.NoError(t, err)
	msg.ReplyTo = "results"
	require.NoError(t, bus.Send(context.Background(), msg))

	require.Eventually(t, func() bool {
		return bus.Len("results") == 1
	}, waitFor, tick)

	w.TerminateWorker(ExitOK)
	r := waitResult(t, out)
	assert.Equal(t, ExitOK, r.code)
	assert.NoError(t, r.err)

	for _, c := range w.Snapshot().Components {
		assert.Equal(t, "stopped", string(c.Status), c.Name)
	}
}

func TestNew_UnknownKind(t *testing.T) {
	settings, err := config.Parse([]byte(`
manager: {name: http}
executor: {name: pool}
subscriber: {name: kafka}
`))
	require.NoError(t, err)

	_, err = New(settings, components.Builtin(), zap.NewNop())
	assert.ErrorIs(t, err, components.ErrUnknownKind)
}
