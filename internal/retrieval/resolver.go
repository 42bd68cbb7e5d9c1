// Package retrieval maps a described appliance issue to a repair procedure.
package retrieval

import (
	"context"
	"errors"

	"github.com/fixmate/fixmate/pkg/procedure"
)

// ErrNotFound is returned when no procedure matches the described issue.
var ErrNotFound = errors.New("no matching procedure found")

// Resolver finds the repair procedure for a described issue.
type Resolver interface {
	Resolve(ctx context.Context, issue, modelNumber string) (*procedure.Definition, error)
}
