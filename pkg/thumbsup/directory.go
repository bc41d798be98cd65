package thumbsup

import (
	"context"
)

// Directory resolves entity existence for the host. It is consulted before
// votes are written and when aggregated voteables are joined back onto their
// type's collection.
type Directory interface {
	Exists(ctx context.Context, ref Ref) (bool, error)

	// Existing returns the subset of ids that still exist for entityType,
	// preserving input order.
	Existing(ctx context.Context, entityType string, ids []string) ([]string, error)
}
