package components

import (
	"testing"

	"github.com/aescanero/patchwork/internal/application/executor"
	"github.com/aescanero/patchwork/internal/application/manager"
	"github.com/aescanero/patchwork/internal/application/statusstore"
	"github.com/aescanero/patchwork/internal/config"
	"github.com/aescanero/patchwork/pkg/adapters/transport/memory"
	"github.com/aescanero/patchwork/pkg/module"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type emptyStatus struct{}

func (emptyStatus) Snapshot() module.Snapshot { return module.Snapshot{} }

func testDeps() Deps {
	return Deps{
		WorkerID:  "w-1",
		Logger:    zap.NewNop(),
		Status:    emptyStatus{},
		Terminate: func(int) {},
	}
}

func parse(t *testing.T, doc string) *config.Settings {
	t.Helper()
	s, err := config.Parse([]byte(doc))
	require.NoError(t, err)
	return s
}

const memoryWorker = `
manager:
  name: http
  config:
    http_addr: 127.0.0.1:0
    disable_grpc: true
executor:
  name: pool
  config:
    size: 2
    routes:
      jobs: echo
      "*": log
modules:
  status:
    name: status-store
    config:
      backend: memory
      interval: 1s
publisher:
  name: memory
subscriber:
  name: memory
  config:
    routes: [jobs]
`

func TestBuiltin_Build(t *testing.T) {
	set, err := Builtin().Build(parse(t, memoryWorker), testDeps())
	require.NoError(t, err)

	assert.IsType(t, &manager.Manager{}, set.Manager)
	assert.IsType(t, &executor.Pool{}, set.Executor)
	assert.IsType(t, &memory.Publisher{}, set.Publisher)
	assert.IsType(t, &memory.Subscriber{}, set.Subscriber)

	require.Len(t, set.Modules, 1)
	assert.IsType(t, &statusstore.Module{}, set.Modules[0])
	assert.Equal(t, "status", set.Modules[0].Name())

	assert.Equal(t, "manager", set.Manager.Name())
	assert.Equal(t, "executor", set.Executor.Name())
	assert.Equal(t, "subscriber", set.Subscriber.Name())
}

func TestBuild_ModulesSortedByName(t *testing.T) {
	reg := NewRegistry()
	stub := func(name string, cfg *config.ComponentConfig, deps Deps) (module.Module, error) {
		return executor.NewPool(name, executor.Config{}, nil, nil, deps.Metrics, deps.Logger), nil
	}
	reg.RegisterManager("stub", stub)
	reg.RegisterModule("stub", stub)
	reg.RegisterSubscriber("memory", newMemorySubscriber)
	reg.RegisterExecutor("pool", newPool)

	settings := parse(t, `
manager: {name: stub}
executor: {name: pool}
subscriber: {name: memory}
modules:
  zeta: {name: stub}
  alpha: {name: stub}
  mid: {name: stub}
`)

	set, err := reg.Build(settings, testDeps())
	require.NoError(t, err)
	require.Len(t, set.Modules, 3)
	assert.Equal(t, "alpha", set.Modules[0].Name())
	assert.Equal(t, "mid", set.Modules[1].Name())
	assert.Equal(t, "zeta", set.Modules[2].Name())
	assert.Nil(t, set.Publisher)
}

func TestBuild_UnknownKinds(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{
			name: "manager",
			doc:  "manager: {name: ftp}\nexecutor: {name: pool}\nsubscriber: {name: memory}\n",
		},
		{
			name: "executor",
			doc:  "manager: {name: http}\nexecutor: {name: threads}\nsubscriber: {name: memory}\n",
		},
		{
			name: "subscriber",
			doc:  "manager: {name: http}\nexecutor: {name: pool}\nsubscriber: {name: kafka}\n",
		},
		{
			name: "publisher",
			doc:  "manager: {name: http}\nexecutor: {name: pool}\npublisher: {name: kafka}\nsubscriber: {name: memory}\n",
		},
		{
			name: "module",
			doc:  "manager: {name: http}\nexecutor: {name: pool}\nsubscriber: {name: memory}\nmodules: {cache: {name: memcached}}\n",
		},
		{
			name: "router",
			doc:  "manager: {name: http}\nexecutor: {name: pool, config: {routes: {jobs: teleport}}}\nsubscriber: {name: memory}\n",
		},
		{
			name: "status backend",
			doc:  "manager: {name: http}\nexecutor: {name: pool}\nsubscriber: {name: memory}\nmodules: {status: {name: status-store, config: {backend: etcd}}}\n",
		},
		{
			name: "directory backend",
			doc:  "manager: {name: http, config: {directory: {backend: etcd}}}\nexecutor: {name: pool}\nsubscriber: {name: memory}\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Builtin().Build(parse(t, tt.doc), testDeps())
			assert.ErrorIs(t, err, ErrUnknownKind)
		})
	}
}

func TestBuild_CompletionRequiresKey(t *testing.T) {
	settings := parse(t, `
manager: {name: http}
executor:
  name: pool
  config:
    routes: {ask: completion}
subscriber: {name: memory}
`)

	_, err := Builtin().Build(settings, testDeps())
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnknownKind)
}

func TestBuild_PostgresRequiresDSN(t *testing.T) {
	settings := parse(t, `
manager: {name: http}
executor: {name: pool}
subscriber: {name: memory}
modules:
  db: {name: postgres}
`)

	_, err := Builtin().Build(settings, testDeps())
	assert.Error(t, err)
}
