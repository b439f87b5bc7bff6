// Package tools implements the closed set of operations the model may call.
package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"taste-agent/internal/domain"
)

var ErrSearchUnavailable = errors.New("tools: restaurant search is not configured")

// ProfileStore is the taste profile state the profile tools operate on.
type ProfileStore interface {
	Get(userID string) domain.TasteProfile
	Update(userID string, category domain.Category, value string, sentiment domain.Sentiment) (string, error)
}

// RestaurantSearcher answers search_restaurants calls.
type RestaurantSearcher interface {
	SearchRestaurants(ctx context.Context, q domain.RestaurantQuery) ([]domain.Restaurant, error)
}

type handlerFunc func(ctx context.Context, args map[string]any) (domain.ToolOutcome, error)

type tool struct {
	schema     domain.ToolSchema
	handle     handlerFunc
	userScoped bool
}

// Registry maps tool names to handlers. The set is fixed at construction.
type Registry struct {
	tools  map[Name]tool
	order  []Name
	logger *slog.Logger
}

type Option func(*Registry)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRegistry builds the registry. searcher may be nil, in which case
// search_restaurants stays in the catalog but always fails.
func NewRegistry(profiles ProfileStore, searcher RestaurantSearcher, opts ...Option) (*Registry, error) {
	if profiles == nil {
		return nil, fmt.Errorf("tools: profile store is required")
	}

	r := &Registry{
		tools:  make(map[Name]tool),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}

	handlers := map[Name]handlerFunc{
		UpdateTasteProfile: updateProfileHandler(profiles),
		GetTasteProfile:    getProfileHandler(profiles),
		SearchRestaurants:  searchHandler(searcher),
	}
	for _, schema := range catalog() {
		name := Name(schema.Name)
		handle, ok := handlers[name]
		if !ok {
			return nil, fmt.Errorf("tools: no handler for %q", name)
		}
		r.tools[name] = tool{
			schema:     schema,
			handle:     handle,
			userScoped: name == UpdateTasteProfile || name == GetTasteProfile,
		}
		r.order = append(r.order, name)
	}
	return r, nil
}

// Schemas returns the catalog in a stable order.
func (r *Registry) Schemas() []domain.ToolSchema {
	out := make([]domain.ToolSchema, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].schema)
	}
	return out
}

// IsUserScoped reports whether the tool acts on the calling user's data and
// so needs user_id injected into its arguments.
func (r *Registry) IsUserScoped(name string) bool {
	t, ok := r.tools[Name(name)]
	return ok && t.userScoped
}

// Execute runs one tool. It never returns an error: unknown names, bad
// arguments and handler failures all come back as an unsuccessful outcome
// the model can read and react to.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) domain.ToolOutcome {
	t, ok := r.tools[Name(name)]
	if !ok {
		r.logger.Warn("unknown tool requested", "tool", name)
		return domain.ToolOutcome{Success: false, Error: fmt.Sprintf("Unknown tool: %s", name)}
	}
	if args == nil {
		args = map[string]any{}
	}

	out, err := t.handle(ctx, args)
	if err != nil {
		r.logger.Warn("tool failed", "tool", name, "err", err)
		return domain.ToolOutcome{Success: false, Error: err.Error()}
	}
	return out
}
