package service

import (
	"context"

	"mediagate/internal/core/domain"
	"mediagate/internal/core/ports"
)

// Route sends URLs accepted by Match to Engine.
type Route struct {
	Name   string
	Match  func(url string) bool
	Engine ports.Engine
}

// EngineRouter implements ports.Engine by dispatching on the URL. The first
// matching route wins; Fallback handles everything else.
type EngineRouter struct {
	Routes   []Route
	Fallback ports.Engine
}

func (r *EngineRouter) pick(url string) ports.Engine {
	for _, route := range r.Routes {
		if route.Match(url) {
			return route.Engine
		}
	}
	return r.Fallback
}

// Extract delegates to the engine that handles url.
func (r *EngineRouter) Extract(ctx context.Context, url string, opts ports.EngineOptions) (*domain.ExtractionResult, error) {
	return r.pick(url).Extract(ctx, url, opts)
}

// Fetch delegates to the engine that handles url.
func (r *EngineRouter) Fetch(ctx context.Context, url string, opts ports.EngineOptions, dest string) ([]domain.LocalFile, error) {
	return r.pick(url).Fetch(ctx, url, opts, dest)
}
