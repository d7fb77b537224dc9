package components

import (
	"fmt"
	"time"

	"github.com/aescanero/patchwork/internal/application/executor"
	"github.com/aescanero/patchwork/internal/application/manager"
	"github.com/aescanero/patchwork/internal/application/statusstore"
	"github.com/aescanero/patchwork/internal/config"
	"github.com/aescanero/patchwork/internal/logging"
	"github.com/aescanero/patchwork/pkg/adapters/llm"
	"github.com/aescanero/patchwork/pkg/adapters/postgres"
	storageredis "github.com/aescanero/patchwork/pkg/adapters/storage/redis"
	"github.com/aescanero/patchwork/pkg/adapters/transport"
	"github.com/aescanero/patchwork/pkg/adapters/transport/amqp"
	"github.com/aescanero/patchwork/pkg/adapters/transport/memory"
	transportredis "github.com/aescanero/patchwork/pkg/adapters/transport/redis"
	"github.com/aescanero/patchwork/pkg/message"
	"github.com/aescanero/patchwork/pkg/module"
	"github.com/aescanero/patchwork/pkg/ports"
	"go.uber.org/zap"
)

// Router kinds accepted in executor routes
const (
	RouterLog        = "log"
	RouterEcho       = "echo"
	RouterCompletion = "completion"
)

const defaultStatusTTL = 30 * time.Second

// Builtin returns a registry with every bundled component kind
func Builtin() *Registry {
	r := NewRegistry()

	r.RegisterManager("http", newManager)
	r.RegisterExecutor("pool", newPool)
	r.RegisterModule("postgres", newPostgres)
	r.RegisterModule("status-store", newStatusStore)

	r.RegisterPublisher("redis", newRedisPublisher)
	r.RegisterSubscriber("redis", newRedisSubscriber)
	r.RegisterPublisher("amqp", newAMQPPublisher)
	r.RegisterSubscriber("amqp", newAMQPSubscriber)
	r.RegisterPublisher("memory", newMemoryPublisher)
	r.RegisterSubscriber("memory", newMemorySubscriber)

	return r
}

// managerConfig is the manager config plus an optional status directory
type managerConfig struct {
	manager.Config `yaml:",inline"`
	Directory      *storageConfig `yaml:"directory"`
}

func newManager(name string, cfg *config.ComponentConfig, deps Deps) (module.Module, error) {
	var mc managerConfig
	if err := cfg.Decode(&mc); err != nil {
		return nil, err
	}

	logger := logging.Component(deps.Logger, string(module.RoleManager), name)

	var dir ports.StatusStorage
	if mc.Directory != nil {
		sc := defaultStorageConfig()
		if mc.Directory.Backend != "" {
			sc.Backend = mc.Directory.Backend
		}
		if mc.Directory.Redis.Addr != "" {
			sc.Redis = mc.Directory.Redis
		}
		storage, err := newStatusStorage(sc, deps, logger.Named("directory"))
		if err != nil {
			return nil, err
		}
		dir = storage
	}

	return manager.New(name, mc.Config, deps.Status, deps.Terminate, deps.Gatherer, dir, logger), nil
}

// poolConfig is the executor pool config plus the completion router's
type poolConfig struct {
	executor.Config `yaml:",inline"`
	Completion      llm.Config `yaml:"completion"`
}

func newPool(name string, cfg *config.ComponentConfig, deps Deps, sub transport.Subscriber, pub transport.Publisher) (module.Module, error) {
	var pc poolConfig
	if err := cfg.Decode(&pc); err != nil {
		return nil, err
	}

	logger := logging.Component(deps.Logger, string(module.RoleExecutor), name)
	pool := executor.NewPool(name, pc.Config, sub, pub, deps.Metrics, logger)

	routes := pc.Routes
	if len(routes) == 0 {
		routes = map[string]string{executor.FallbackRoute: RouterLog}
	}

	var completion message.Router
	for route, kind := range routes {
		var router message.Router
		switch kind {
		case RouterLog:
			router = executor.LogRouter(logger.Named("router"))
		case RouterEcho:
			router = executor.EchoRouter()
		case RouterCompletion:
			if completion == nil {
				r, err := llm.NewRouter(pc.Completion, logger.Named("completion"))
				if err != nil {
					return nil, fmt.Errorf("failed to create completion router: %w", err)
				}
				completion = r
			}
			router = completion
		default:
			return nil, fmt.Errorf("%w: router %q for route %q", ErrUnknownKind, kind, route)
		}
		pool.AddRouter(route, router)
	}

	return pool, nil
}

func newPostgres(name string, cfg *config.ComponentConfig, deps Deps) (module.Module, error) {
	var pc postgres.Config
	if err := cfg.Decode(&pc); err != nil {
		return nil, err
	}
	return postgres.New(name, pc, logging.Component(deps.Logger, string(module.RoleModule), name))
}

// storageConfig selects a status storage backend
type storageConfig struct {
	Backend string                `yaml:"backend"`
	TTL     time.Duration         `yaml:"ttl"`
	Redis   transportredis.Config `yaml:"redis"`
}

func defaultStorageConfig() storageConfig {
	return storageConfig{
		Backend: "redis",
		TTL:     defaultStatusTTL,
		Redis:   transportredis.DefaultConfig(),
	}
}

// newStatusStorage builds a status storage. The memory backend is shared by
// every component built from the same deps.
func newStatusStorage(sc storageConfig, deps Deps, logger *zap.Logger) (ports.StatusStorage, error) {
	switch sc.Backend {
	case "redis":
		return storageredis.NewStatusStorage(transportredis.NewClient(sc.Redis), sc.TTL, logger), nil
	case "memory":
		return deps.Statuses, nil
	default:
		return nil, fmt.Errorf("%w: status storage backend %q", ErrUnknownKind, sc.Backend)
	}
}

// statusStoreConfig is the status store config plus its storage backend
type statusStoreConfig struct {
	statusstore.Config `yaml:",inline"`
	storageConfig      `yaml:",inline"`
}

func newStatusStore(name string, cfg *config.ComponentConfig, deps Deps) (module.Module, error) {
	sc := statusStoreConfig{storageConfig: defaultStorageConfig()}
	if err := cfg.Decode(&sc); err != nil {
		return nil, err
	}

	logger := logging.Component(deps.Logger, string(module.RoleModule), name)

	storage, err := newStatusStorage(sc.storageConfig, deps, logger)
	if err != nil {
		return nil, err
	}

	return statusstore.New(name, sc.Config, storage, deps.Status, logger), nil
}

func newRedisPublisher(name string, cfg *config.ComponentConfig, deps Deps) (transport.Publisher, error) {
	rc := transportredis.DefaultConfig()
	if err := cfg.Decode(&rc); err != nil {
		return nil, err
	}
	logger := logging.Component(deps.Logger, string(module.RolePublisher), name)
	return transportredis.NewStreamsPublisher(name, transportredis.NewClient(rc), rc, logger), nil
}

func newRedisSubscriber(name string, cfg *config.ComponentConfig, deps Deps) (transport.Subscriber, error) {
	rc := transportredis.DefaultConfig()
	if err := cfg.Decode(&rc); err != nil {
		return nil, err
	}
	logger := logging.Component(deps.Logger, string(module.RoleSubscriber), name)
	return transportredis.NewStreamsSubscriber(name, transportredis.NewClient(rc), rc, logger), nil
}

func newAMQPPublisher(name string, cfg *config.ComponentConfig, deps Deps) (transport.Publisher, error) {
	ac := amqp.DefaultConfig()
	if err := cfg.Decode(&ac); err != nil {
		return nil, err
	}
	return amqp.NewPublisher(name, ac, logging.Component(deps.Logger, string(module.RolePublisher), name)), nil
}

func newAMQPSubscriber(name string, cfg *config.ComponentConfig, deps Deps) (transport.Subscriber, error) {
	ac := amqp.DefaultConfig()
	if err := cfg.Decode(&ac); err != nil {
		return nil, err
	}
	return amqp.NewSubscriber(name, ac, logging.Component(deps.Logger, string(module.RoleSubscriber), name)), nil
}

// memoryConfig lists the routes a memory subscriber consumes
type memoryConfig struct {
	Routes []string `yaml:"routes"`
}

func newMemoryPublisher(name string, cfg *config.ComponentConfig, deps Deps) (transport.Publisher, error) {
	return memory.NewPublisher(name, deps.Bus), nil
}

func newMemorySubscriber(name string, cfg *config.ComponentConfig, deps Deps) (transport.Subscriber, error) {
	var mc memoryConfig
	if err := cfg.Decode(&mc); err != nil {
		return nil, err
	}
	return memory.NewSubscriber(name, deps.Bus, mc.Routes), nil
}
