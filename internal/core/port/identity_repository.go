package port

import (
	"context"

	"github.com/nisum/oppenheimer/internal/core/domain"
)

// IdentityRepository exposes persistence behavior for identities.
// Implementations must enforce email uniqueness as a hard constraint and report
// violations as repository.ErrDuplicateEmail.
type IdentityRepository interface {
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	// Save persists the identity with its phones atomically and returns it with
	// CreatedAt and ModifiedAt stamped.
	Save(ctx context.Context, identity domain.Identity) (domain.Identity, error)
}
