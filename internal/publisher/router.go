package publisher

import (
	"context"
	"fmt"

	"github.com/avataralabs/queuelabs-sub000/internal/retry"
)

// Router picks a publisher by platform and falls back to a default.
type Router struct {
	byPlatform map[string]Publisher
	fallback   Publisher
}

func NewRouter(fallback Publisher) *Router {
	return &Router{byPlatform: make(map[string]Publisher), fallback: fallback}
}

func (r *Router) Handle(platform string, p Publisher) *Router {
	r.byPlatform[platform] = p
	return r
}

func (r *Router) Publish(ctx context.Context, req *Request) (*Result, error) {
	if p, ok := r.byPlatform[req.Platform]; ok {
		return p.Publish(ctx, req)
	}
	if r.fallback == nil {
		return nil, &PublishError{Kind: retry.KindRejected, Err: fmt.Errorf("no publisher for platform %q", req.Platform)}
	}
	return r.fallback.Publish(ctx, req)
}
