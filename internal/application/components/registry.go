// Package components maps configured component kinds to their factories
// and builds the worker's collaborators from settings.
package components

import (
	"errors"
	"fmt"
	"sort"

	"github.com/aescanero/patchwork/internal/config"
	storagememory "github.com/aescanero/patchwork/pkg/adapters/storage/memory"
	"github.com/aescanero/patchwork/pkg/adapters/transport"
	"github.com/aescanero/patchwork/pkg/adapters/transport/memory"
	"github.com/aescanero/patchwork/pkg/module"
	"github.com/aescanero/patchwork/pkg/ports"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// ErrUnknownKind is returned when no factory is registered for a kind
var ErrUnknownKind = errors.New("unknown component kind")

const defaultBusSize = 64

// Deps are the shared dependencies handed to every factory
type Deps struct {
	WorkerID  string
	Logger    *zap.Logger
	Metrics   ports.MetricsCollector
	Gatherer  prometheus.Gatherer
	Status    module.StatusSource
	Terminate func(code int)

	// Bus backs the memory transport; created on demand
	Bus *memory.Bus

	// Statuses backs the memory status storage; created on demand
	Statuses *storagememory.StatusStorage
}

// Factory builds a manager or module
type Factory func(name string, cfg *config.ComponentConfig, deps Deps) (module.Module, error)

// PublisherFactory builds a publisher
type PublisherFactory func(name string, cfg *config.ComponentConfig, deps Deps) (transport.Publisher, error)

// SubscriberFactory builds a subscriber
type SubscriberFactory func(name string, cfg *config.ComponentConfig, deps Deps) (transport.Subscriber, error)

// ExecutorFactory builds an executor wired to the transports. pub may be nil.
type ExecutorFactory func(name string, cfg *config.ComponentConfig, deps Deps, sub transport.Subscriber, pub transport.Publisher) (module.Module, error)

// Set is a fully built group of components
type Set struct {
	Manager    module.Module
	Executor   module.Module
	Modules    []module.Module
	Publisher  transport.Publisher
	Subscriber transport.Subscriber
}

// Registry holds factories per role, keyed by kind
type Registry struct {
	managers    map[string]Factory
	modules     map[string]Factory
	executors   map[string]ExecutorFactory
	publishers  map[string]PublisherFactory
	subscribers map[string]SubscriberFactory
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		managers:    make(map[string]Factory),
		modules:     make(map[string]Factory),
		executors:   make(map[string]ExecutorFactory),
		publishers:  make(map[string]PublisherFactory),
		subscribers: make(map[string]SubscriberFactory),
	}
}

// RegisterManager registers a manager factory
func (r *Registry) RegisterManager(kind string, f Factory) {
	r.managers[kind] = f
}

// RegisterModule registers a module factory
func (r *Registry) RegisterModule(kind string, f Factory) {
	r.modules[kind] = f
}

// RegisterExecutor registers an executor factory
func (r *Registry) RegisterExecutor(kind string, f ExecutorFactory) {
	r.executors[kind] = f
}

// RegisterPublisher registers a publisher factory
func (r *Registry) RegisterPublisher(kind string, f PublisherFactory) {
	r.publishers[kind] = f
}

// RegisterSubscriber registers a subscriber factory
func (r *Registry) RegisterSubscriber(kind string, f SubscriberFactory) {
	r.subscribers[kind] = f
}

// Build constructs every component named in settings
func (r *Registry) Build(settings *config.Settings, deps Deps) (*Set, error) {
	if deps.Metrics == nil {
		deps.Metrics = ports.NopMetrics{}
	}
	if deps.Bus == nil {
		deps.Bus = memory.NewBus(defaultBusSize)
	}
	if deps.Statuses == nil {
		deps.Statuses = storagememory.NewStatusStorage()
	}

	set := &Set{}

	managerFactory, ok := r.managers[settings.Manager.Name]
	if !ok {
		return nil, unknown(module.RoleManager, settings.Manager.Name)
	}
	manager, err := managerFactory(string(module.RoleManager), &settings.Manager, deps)
	if err != nil {
		return nil, fmt.Errorf("failed to build manager: %w", err)
	}
	set.Manager = manager

	names := make([]string, 0, len(settings.Modules))
	for name := range settings.Modules {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		cfg := settings.Modules[name]
		factory, ok := r.modules[cfg.Name]
		if !ok {
			return nil, unknown(module.RoleModule, cfg.Name)
		}
		mod, err := factory(name, &cfg, deps)
		if err != nil {
			return nil, fmt.Errorf("failed to build module %s: %w", name, err)
		}
		set.Modules = append(set.Modules, mod)
	}

	if settings.Publisher != nil {
		factory, ok := r.publishers[settings.Publisher.Name]
		if !ok {
			return nil, unknown(module.RolePublisher, settings.Publisher.Name)
		}
		pub, err := factory(string(module.RolePublisher), settings.Publisher, deps)
		if err != nil {
			return nil, fmt.Errorf("failed to build publisher: %w", err)
		}
		set.Publisher = pub
	}

	if settings.Subscriber == nil {
		return nil, fmt.Errorf("%w: subscriber is required", config.ErrInvalid)
	}
	subFactory, ok := r.subscribers[settings.Subscriber.Name]
	if !ok {
		return nil, unknown(module.RoleSubscriber, settings.Subscriber.Name)
	}
	sub, err := subFactory(string(module.RoleSubscriber), settings.Subscriber, deps)
	if err != nil {
		return nil, fmt.Errorf("failed to build subscriber: %w", err)
	}
	set.Subscriber = sub

	execFactory, ok := r.executors[settings.Executor.Name]
	if !ok {
		return nil, unknown(module.RoleExecutor, settings.Executor.Name)
	}
	exec, err := execFactory(string(module.RoleExecutor), &settings.Executor, deps, set.Subscriber, set.Publisher)
	if err != nil {
		return nil, fmt.Errorf("failed to build executor: %w", err)
	}
	set.Executor = exec

	return set, nil
}

func unknown(role module.Role, kind string) error {
	return fmt.Errorf("%w: %s %q", ErrUnknownKind, role, kind)
}
