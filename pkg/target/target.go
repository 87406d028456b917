// Package target defines the boundary to the target identity directory.
// The engine drives creates, patches and deletes through the Client
// interface; the concrete HTTP adapter lives under internal/target.
package target

import "context"

// Attributes is the mutable attribute set sent to the target directory.
// Updates replace the whole set; there are no field-level partial patches.
type Attributes struct {
	SourceImmutableID string
	GivenName         string
	Surname           string
	DisplayName       string
	MailNickname      string
	PrincipalName     string
}

// CreateRequest carries the attributes plus the fixed defaults applied to
// every newly created principal.
type CreateRequest struct {
	Attributes

	AccountEnabled      bool
	Password            string
	ForcePasswordChange bool
	UsageLocation       string
	PasswordPolicies    string
}

// Principal is a principal as seen in the target directory, either active
// or soft-deleted in the trash.
type Principal struct {
	ID                string
	SourceImmutableID string
	GivenName         string
	Surname           string
	DisplayName       string
	PrincipalName     string

	// SoftDeleted marks principals found in the target's trash rather
	// than among the active principals.
	SoftDeleted bool
}

// Filter selects principals whose source immutable id or principal name
// matches. Both fields are ORed, mirroring the conflict probe.
type Filter struct {
	SourceImmutableID string
	PrincipalName     string
}

// Client is the target directory client consumed by the engine. All calls
// are synchronous; rejected operations fail with a RemoteRejectedError
// carrying the service's message.
type Client interface {
	// CreatePrincipal creates a principal and returns its target id.
	CreatePrincipal(ctx context.Context, req CreateRequest) (string, error)

	// PatchPrincipal replaces the principal's mutable attribute set.
	PatchPrincipal(ctx context.Context, targetID string, attrs Attributes) error

	// DeletePrincipal removes the principal, leaving it recoverable in
	// the target's trash.
	DeletePrincipal(ctx context.Context, targetID string) error

	// PurgeDeleted permanently removes a soft-deleted principal from the
	// trash.
	PurgeDeleted(ctx context.Context, targetID string) error

	// RestoreDeleted restores a soft-deleted principal from the trash.
	RestoreDeleted(ctx context.Context, targetID string) error

	// QueryPrincipals returns active principals matching the filter.
	QueryPrincipals(ctx context.Context, filter Filter) ([]Principal, error)

	// QueryDeletedPrincipals returns soft-deleted principals matching the
	// filter, marked SoftDeleted.
	QueryDeletedPrincipals(ctx context.Context, filter Filter) ([]Principal, error)

	// AssignLicense assigns the given license SKUs to the principal.
	AssignLicense(ctx context.Context, targetID string, skuIDs []string) error
}
