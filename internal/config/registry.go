package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/saianfordx/vellum/pkg/provider/embeddings"
	"github.com/saianfordx/vellum/pkg/provider/image"
	"github.com/saianfordx/vellum/pkg/provider/llm"
)

// ErrProviderNotRegistered reports a Create* call for a name no factory was
// registered under. Match it with [errors.Is].
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Factory builds a provider of type P from its config entry.
type Factory[P any] func(ProviderEntry) (P, error)

// catalog is one name-to-factory table with its own lock, so registering an
// LLM never contends with creating an embeddings provider.
type catalog[P any] struct {
	kind string

	mu     sync.RWMutex
	byName map[string]Factory[P]
}

func (c *catalog[P]) put(name string, f Factory[P]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.byName == nil {
		c.byName = map[string]Factory[P]{}
	}
	c.byName[name] = f
}

// build resolves the factory and runs it outside the lock, so a factory is
// free to touch the registry itself.
func (c *catalog[P]) build(entry ProviderEntry) (P, error) {
	c.mu.RLock()
	f, ok := c.byName[entry.Name]
	c.mu.RUnlock()
	if !ok {
		var zero P
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, c.kind, entry.Name)
	}
	return f(entry)
}

// Registry resolves the provider names appearing in the config file into live
// provider instances. main registers the built-in factories once at startup;
// all methods are safe for concurrent use.
type Registry struct {
	llm        catalog[llm.Provider]
	embeddings catalog[embeddings.Provider]
	image      catalog[image.Provider]
}

// NewRegistry returns a [Registry] with no factories registered.
func NewRegistry() *Registry {
	return &Registry{
		llm:        catalog[llm.Provider]{kind: "llm"},
		embeddings: catalog[embeddings.Provider]{kind: "embeddings"},
		image:      catalog[image.Provider]{kind: "image"},
	}
}

// RegisterLLM makes factory available to [Registry.CreateLLM] under name.
// Registering a name twice keeps the later factory.
func (r *Registry) RegisterLLM(name string, factory Factory[llm.Provider]) {
	r.llm.put(name, factory)
}

// RegisterEmbeddings makes factory available to [Registry.CreateEmbeddings]
// under name.
func (r *Registry) RegisterEmbeddings(name string, factory Factory[embeddings.Provider]) {
	r.embeddings.put(name, factory)
}

// RegisterImage makes factory available to [Registry.CreateImage] under name.
func (r *Registry) RegisterImage(name string, factory Factory[image.Provider]) {
	r.image.put(name, factory)
}

// CreateLLM builds the LLM provider entry.Name refers to, or returns
// [ErrProviderNotRegistered].
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	return r.llm.build(entry)
}

// CreateEmbeddings builds the embeddings provider entry.Name refers to, or
// returns [ErrProviderNotRegistered].
func (r *Registry) CreateEmbeddings(entry ProviderEntry) (embeddings.Provider, error) {
	return r.embeddings.build(entry)
}

// CreateImage builds the image provider entry.Name refers to, or returns
// [ErrProviderNotRegistered].
func (r *Registry) CreateImage(entry ProviderEntry) (image.Provider, error) {
	return r.image.build(entry)
}
