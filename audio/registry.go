package audio

import (
	"fmt"
	"sort"
	"sync"

	"github.com/hashicorp/go-multierror"
)

// BackendFactory 创建一个后端实例
type BackendFactory func() (Backend, error)

type backendFactoryWithPriority struct {
	Name     string
	Priority int
	Factory  BackendFactory
}

var (
	backendRegistry       = map[string]backendFactoryWithPriority{}
	backendRegistryLocker sync.Mutex

	lastSuccessfulBackend string
)

// RegisterBackend 注册后端工厂，通常在后端包的 init 中调用。重复注册同名后端会 panic。
func RegisterBackend(name string, priority int, factory BackendFactory) {
	backendRegistryLocker.Lock()
	defer backendRegistryLocker.Unlock()

	if _, ok := backendRegistry[name]; ok {
		panic(fmt.Errorf("there is already registered an audio backend named %q", name))
	}
	backendRegistry[name] = backendFactoryWithPriority{
		Name:     name,
		Priority: priority,
		Factory:  factory,
	}
}

// Backends 按优先级从高到低返回已注册的后端名
func Backends() []string {
	var names []string
	for _, f := range sortedBackendFactories() {
		names = append(names, f.Name)
	}
	return names
}

func sortedBackendFactories() []backendFactoryWithPriority {
	backendRegistryLocker.Lock()
	defer backendRegistryLocker.Unlock()

	factories := make([]backendFactoryWithPriority, 0, len(backendRegistry))
	for _, f := range backendRegistry {
		factories = append(factories, f)
	}
	sort.Slice(factories, func(i, j int) bool {
		if factories[i].Priority == factories[j].Priority {
			return factories[i].Name < factories[j].Name
		}
		return factories[i].Priority > factories[j].Priority
	})
	return factories
}

// NewBackend 按名字创建后端，name 为空或 "auto" 时自动选择
func NewBackend(name string) (Backend, error) {
	if name == "" || name == "auto" {
		return NewBackendAuto()
	}

	backendRegistryLocker.Lock()
	f, ok := backendRegistry[name]
	backendRegistryLocker.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q is not registered", ErrNoBackend, name)
	}

	backend, err := f.Factory()
	if err != nil {
		return nil, fmt.Errorf("unable to initialize audio backend %q: %w", name, err)
	}
	return backend, nil
}

// NewBackendAuto 依次尝试已注册的后端，优先使用上次成功的那个
func NewBackendAuto() (Backend, error) {
	factories := sortedBackendFactories()

	backendRegistryLocker.Lock()
	last := lastSuccessfulBackend
	backendRegistryLocker.Unlock()
	if last != "" {
		sort.SliceStable(factories, func(i, j int) bool {
			return factories[i].Name == last && factories[j].Name != last
		})
	}

	var mErr *multierror.Error
	for _, f := range factories {
		backend, err := f.Factory()
		if err != nil {
			mErr = multierror.Append(mErr, fmt.Errorf("unable to initialize %s: %w", f.Name, err))
			continue
		}

		backendRegistryLocker.Lock()
		lastSuccessfulBackend = f.Name
		backendRegistryLocker.Unlock()
		return backend, nil
	}

	if err := mErr.ErrorOrNil(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoBackend, err)
	}
	return nil, ErrNoBackend
}
