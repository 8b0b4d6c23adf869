package app

import (
	"context"

	"postpilot/internal/storage"
)

// adminBackend adapts App to the admin API.
type adminBackend struct{ a *App }

func (b adminBackend) AllPosts(ctx context.Context) ([]storage.Post, error) {
	return b.a.AllPosts(ctx)
}

func (b adminBackend) Logs() []string { return b.a.Logs() }

func (b adminBackend) Status(ctx context.Context) (any, error) {
	return b.a.Status(ctx)
}

func (b adminBackend) GenerateAndSchedule(ctx context.Context) (any, error) {
	rep, err := b.a.GenerateAndSchedule(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{"report": rep, "message": rep.String()}, nil
}

func (b adminBackend) RunDispatchCycle(ctx context.Context) (any, error) {
	sum, err := b.a.RunDispatchCycle(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{"summary": sum, "message": sum.String()}, nil
}

func (b adminBackend) StartBackgroundLoops(ctx context.Context) (bool, error) {
	return b.a.StartBackgroundLoops(ctx)
}
