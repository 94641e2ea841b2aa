// Package registry maps node type names to their factories.
package registry

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"plugin"
	"sort"
	"strings"

	"github.com/dukex/microred/pkg/flow"
	"github.com/dukex/microred/pkg/protocol"
)

var (
	ErrUnknownNodeType = errors.New("unknown node type")
	ErrInvalidPlugin   = errors.New("invalid plugin")
)

type Registry struct {
	logger        *slog.Logger
	nodeFactories map[string]protocol.NodeFactory
}

func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}

	return &Registry{
		logger:        log.With("module", "registry"),
		nodeFactories: make(map[string]protocol.NodeFactory),
	}
}

// LoadNodePlugins opens every nodes/**/*.so under pluginsPath and registers the
// factory exported as the "Node" symbol.
func (r *Registry) LoadNodePlugins(pluginsPath string) ([]protocol.NodeFactory, error) {
	factories, err := loadPlugin[protocol.NodeFactory](r.logger, pluginsPath, "Node")
	if err != nil {
		return nil, err
	}

	for _, factory := range factories {
		r.RegisterNode(factory)
	}

	return factories, nil
}

// RegisterNode adds a factory. A later registration for the same type wins.
func (r *Registry) RegisterNode(factory protocol.NodeFactory) {
	if _, exists := r.nodeFactories[factory.ID()]; exists {
		r.logger.Warn("Replacing node factory", "type", factory.ID())
	}

	r.nodeFactories[factory.ID()] = factory
}

// Factory returns the factory registered for nodeType.
func (r *Registry) Factory(nodeType string) (protocol.NodeFactory, bool) {
	factory, ok := r.nodeFactories[nodeType]

	return factory, ok
}

// CreateNode constructs a node of opts.Type.
func (r *Registry) CreateNode(ctx context.Context, opts flow.Options, deps protocol.Dependencies) (flow.Node, error) {
	factory, ok := r.nodeFactories[opts.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNodeType, opts.Type)
	}

	return factory.Create(ctx, opts, deps)
}

// GetAvailableNodes returns every registered factory ordered by type name.
func (r *Registry) GetAvailableNodes() []protocol.NodeFactory {
	factories := make([]protocol.NodeFactory, 0, len(r.nodeFactories))
	for _, factory := range r.nodeFactories {
		factories = append(factories, factory)
	}

	sort.Slice(factories, func(i, j int) bool {
		return factories[i].ID() < factories[j].ID()
	})

	return factories
}

func loadPlugin[T any](logger *slog.Logger, pluginsPath string, symbolName string) ([]T, error) {
	rootPath := filepath.Join(pluginsPath, strings.ToLower(symbolName)+"s")

	pluginPathList, err := fs.Glob(os.DirFS(rootPath), "*/*.so")
	if err != nil {
		return nil, err
	}

	l := logger.With(slog.String("path", pluginsPath), slog.String("type", symbolName))
	l.Info("Loading plugins", "count", len(pluginPathList))

	pluginList := make([]T, 0, len(pluginPathList))

	for _, p := range pluginPathList {
		plg, err := plugin.Open(filepath.Join(rootPath, p))
		if err != nil {
			return nil, fmt.Errorf("%w: open %s: %w", ErrInvalidPlugin, p, err)
		}

		v, err := plg.Lookup(symbolName)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidPlugin, p, err)
		}

		var castV T

		// exported variables are looked up as pointers
		switch sym := any(v).(type) {
		case T:
			castV = sym
		case *T:
			castV = *sym
		default:
			return nil, fmt.Errorf("%w: %s does not export a %s factory", ErrInvalidPlugin, p, symbolName)
		}

		pluginList = append(pluginList, castV)

		l.Info("Loaded plugin", slog.String("plugin", p))
	}

	return pluginList, nil
}
