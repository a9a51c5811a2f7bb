package tool

import (
	"sync"

	"github.com/hupe1980/mcpmesh/logging"
	"github.com/hupe1980/mcpmesh/mcp"
)

// Registry maps tool names to bindings and holds the listing-only resource,
// template and prompt catalogs. It is populated before normal operation and
// treated read-mostly afterwards; all methods are safe for concurrent use.
//
// Registration never fails: entries without a name are skipped and duplicate
// names overwrite the earlier entry silently.
type Registry struct {
	mu        sync.RWMutex
	bindings  map[string]Binding
	order     []string
	resources []mcp.Resource
	templates []mcp.ResourceTemplate
	prompts   []mcp.Prompt
	listeners map[int]func()
	nextID    int
	logger    logging.Logger
}

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	// Logger receives registration diagnostics. Defaults to NoOpLogger.
	Logger logging.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(optFns ...func(o *RegistryOptions)) *Registry {
	opts := RegistryOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Registry{
		bindings:  map[string]Binding{},
		listeners: map[int]func(){},
		logger:    opts.Logger,
	}
}

// OnChange registers a change-notification callback invoked after every
// mutation and returns a function that removes it again. Sessions use this
// to emit tools/list_changed upstream; with no callbacks registered a
// mutation notifies nobody (the default no-op).
func (r *Registry) OnChange(fn func()) (remove func()) {
	if fn == nil {
		return func() {}
	}
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.listeners[id] = fn
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		delete(r.listeners, id)
		r.mu.Unlock()
	}
}

// RegisterSource walks a declarative capability source and registers every
// named tool it declares, plus any resources, templates and prompts the
// source contributes. Entries without a name are skipped.
func (r *Registry) RegisterSource(source Source) {
	if source == nil {
		return
	}

	for _, t := range source.Tools() {
		if t == nil || t.Name() == "" {
			r.logger.Debug("registry.source.skip", "reason", "unnamed tool")
			continue
		}
		r.add(Binding{
			Tool: mcp.Tool{
				Name:        t.Name(),
				Description: t.Description(),
				InputSchema: t.Schema(),
			},
			Handler: t.Call,
			Source:  source,
		})
	}

	if rs, ok := source.(ResourceSource); ok {
		r.mu.Lock()
		r.resources = append(r.resources, rs.Resources()...)
		r.mu.Unlock()
	}
	if ts, ok := source.(TemplateSource); ok {
		r.mu.Lock()
		r.templates = append(r.templates, ts.ResourceTemplates()...)
		r.mu.Unlock()
	}
	if ps, ok := source.(PromptSource); ok {
		r.mu.Lock()
		r.prompts = append(r.prompts, ps.Prompts()...)
		r.mu.Unlock()
	}

	r.notify()
}

// RegisterExternal adapts a pre-described function verbatim: the descriptor's
// schema is trusted as-is, no inference happens.
func (r *Registry) RegisterExternal(d Descriptor) {
	if d.Name == "" || d.Handler == nil {
		r.logger.Debug("registry.external.skip", "reason", "incomplete descriptor")
		return
	}
	schema := d.Schema
	if schema.Type == "" {
		schema.Type = "object"
	}
	r.add(Binding{
		Tool: mcp.Tool{
			Name:        d.Name,
			Description: d.Description,
			InputSchema: schema,
		},
		Handler: d.Handler,
	})
	r.notify()
}

// AddTool registers a Tool implementation.
func (r *Registry) AddTool(t Tool) {
	if t == nil || t.Name() == "" {
		return
	}
	r.add(Binding{
		Tool: mcp.Tool{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: t.Schema(),
		},
		Handler: t.Call,
	})
	r.notify()
}

// AddDirect inserts a fully pre-built descriptor and handler verbatim.
func (r *Registry) AddDirect(desc mcp.Tool, handler Handler) {
	if desc.Name == "" || handler == nil {
		return
	}
	r.add(Binding{Tool: desc, Handler: handler})
	r.notify()
}

// AddResource registers a listing-only resource.
func (r *Registry) AddResource(res mcp.Resource) {
	r.mu.Lock()
	r.resources = append(r.resources, res)
	r.mu.Unlock()
	r.notify()
}

// AddResourceTemplate registers a listing-only resource template.
func (r *Registry) AddResourceTemplate(tpl mcp.ResourceTemplate) {
	r.mu.Lock()
	r.templates = append(r.templates, tpl)
	r.mu.Unlock()
	r.notify()
}

// AddPrompt registers a listing-only prompt.
func (r *Registry) AddPrompt(p mcp.Prompt) {
	r.mu.Lock()
	r.prompts = append(r.prompts, p)
	r.mu.Unlock()
	r.notify()
}

// Lookup resolves a binding by tool name.
func (r *Registry) Lookup(name string) (Binding, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bindings[name]
	return b, ok
}

// Tools returns a snapshot of the registered tool descriptors in
// registration order.
func (r *Registry) Tools() []mcp.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]mcp.Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.bindings[name].Tool)
	}
	return out
}

// Descriptors exports the registry contents in the external descriptor
// shape, the symmetric counterpart to RegisterExternal.
func (r *Registry) Descriptors() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		b := r.bindings[name]
		out = append(out, Descriptor{
			Name:        b.Tool.Name,
			Description: b.Tool.Description,
			Schema:      b.Tool.InputSchema,
			Handler:     b.Handler,
		})
	}
	return out
}

// Resources returns a snapshot of the registered resources.
func (r *Registry) Resources() []mcp.Resource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]mcp.Resource, len(r.resources))
	copy(out, r.resources)
	return out
}

// ResourceTemplates returns a snapshot of the registered templates.
func (r *Registry) ResourceTemplates() []mcp.ResourceTemplate {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]mcp.ResourceTemplate, len(r.templates))
	copy(out, r.templates)
	return out
}

// Prompts returns a snapshot of the registered prompts.
func (r *Registry) Prompts() []mcp.Prompt {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]mcp.Prompt, len(r.prompts))
	copy(out, r.prompts)
	return out
}

// Clear removes every binding and listing. Bindings persist for the process
// lifetime otherwise; this is the only removal path.
func (r *Registry) Clear() {
	r.mu.Lock()
	r.bindings = map[string]Binding{}
	r.order = nil
	r.resources = nil
	r.templates = nil
	r.prompts = nil
	r.mu.Unlock()
	r.notify()
}

func (r *Registry) add(b Binding) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.bindings[b.Tool.Name]; exists {
		// Later registration wins; keep the original position.
		r.logger.Debug("registry.overwrite", "tool", b.Tool.Name)
	} else {
		r.order = append(r.order, b.Tool.Name)
	}
	r.bindings[b.Tool.Name] = b
}

func (r *Registry) notify() {
	r.mu.RLock()
	fns := make([]func(), 0, len(r.listeners))
	for _, fn := range r.listeners {
		fns = append(fns, fn)
	}
	r.mu.RUnlock()
	for _, fn := range fns {
		fn()
	}
}
