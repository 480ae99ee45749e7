package image

import (
	"context"
	"errors"
	"fmt"
)

// Chain tries each generator in order and returns the first success.
type Chain []Generator

func (c Chain) Generate(ctx context.Context, req GenerateRequest) (*Asset, error) {
	if len(c) == 0 {
		return nil, errors.New("no image generator configured")
	}
	var errs []error
	for _, g := range c {
		asset, err := g.Generate(ctx, req)
		if err == nil {
			return asset, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		errs = append(errs, err)
	}
	return nil, fmt.Errorf("all image generators failed: %w", errors.Join(errs...))
}

var _ Generator = Chain(nil)
