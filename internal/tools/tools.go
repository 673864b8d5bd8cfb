// Package tools defines narrow, independently invocable capabilities and
// the routing policy that decides which of them a turn needs. Tools never
// receive the full conversation, only a derived query, so the data that
// leaves the process boundary stays bounded.
package tools

import (
	"context"

	"github.com/msf-usa/chatd/internal/domain"
)

// Tool type tags.
const (
	TypeWebSearch = "web_search"
)

// Result is the outcome of one tool invocation.
type Result struct {
	Text      string
	Citations []domain.Citation
}

// Tool is a single invocable capability.
type Tool interface {
	Type() string
	Name() string
	Execute(ctx context.Context, query string) (*Result, error)
}
