package middleware

import (
	"slices"

	"github.com/danielgtaylor/huma/v2"
)

// Chain общие мидлвари, которые ставятся первыми в каждую группу операций
type Chain struct {
	base huma.Middlewares
}

func NewChain(base ...func(ctx huma.Context, next func(huma.Context))) *Chain {
	return &Chain{base: base}
}

// Build возвращает новый список: общие мидлвари и затем extra.
// Общий список при этом не меняется.
func (c *Chain) Build(extra ...func(ctx huma.Context, next func(huma.Context))) huma.Middlewares {
	out := slices.Clone(c.base)
	return append(out, extra...)
}
