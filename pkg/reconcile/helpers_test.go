package reconcile_test

import (
	"context"
	"fmt"
	"sync"

	"github.com/dirbridge/dirbridge/pkg/errors"
	"github.com/dirbridge/dirbridge/pkg/reconcile"
	"github.com/dirbridge/dirbridge/pkg/source"
	"github.com/dirbridge/dirbridge/pkg/target"
)

// testPatterns maps the test entry attributes onto record fields.
func testPatterns() reconcile.Patterns {
	return reconcile.Patterns{
		SourceImmutableID: "{uid}",
		GivenName:         "{givenName}",
		Surname:           "{sn}",
		DisplayName:       "{givenName} {sn}",
		MailNickname:      "{uid}",
		PrincipalName:     "{uid}@example.com",
	}
}

// entry builds a source entry carrying the attributes the test patterns
// reference.
func entry(uid, givenName, sn string) source.Entry {
	return source.NewEntry("uid="+uid+",ou=people,dc=example,dc=com", map[string]source.Attribute{
		"uid":       {Value: uid},
		"givenName": {Value: givenName},
		"sn":        {Value: sn},
	})
}

// fakeReader serves a fixed snapshot.
type fakeReader struct {
	entries   []source.Entry
	searchErr error
	closed    bool
}

func (r *fakeReader) Search(_ context.Context, _, _ string, _ []string) ([]source.Entry, error) {
	if r.searchErr != nil {
		return nil, r.searchErr
	}
	return r.entries, nil
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

// readerFor returns a factory serving the given reader.
func readerFor(r *fakeReader) reconcile.ReaderFactory {
	return func(context.Context) (source.Reader, error) {
		return r, nil
	}
}

// fakeClient is an in-memory target directory client recording every call.
type fakeClient struct {
	mu     sync.Mutex
	nextID int

	created  []target.CreateRequest
	patched  map[string]target.Attributes
	deleted  []string
	purged   []string
	restored []string
	licensed map[string][]string

	active []target.Principal
	trash  []target.Principal

	createErr  error
	patchErr   error
	deleteErr  error
	purgeErr   error
	restoreErr error
	licenseErr error
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		patched:  make(map[string]target.Attributes),
		licensed: make(map[string][]string),
	}
}

func (c *fakeClient) CreatePrincipal(_ context.Context, req target.CreateRequest) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.createErr != nil {
		return "", c.createErr
	}
	c.nextID++
	id := fmt.Sprintf("target-%d", c.nextID)
	c.created = append(c.created, req)
	return id, nil
}

func (c *fakeClient) PatchPrincipal(_ context.Context, targetID string, attrs target.Attributes) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.patchErr != nil {
		return c.patchErr
	}
	c.patched[targetID] = attrs
	return nil
}

func (c *fakeClient) DeletePrincipal(_ context.Context, targetID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.deleteErr != nil {
		return c.deleteErr
	}
	c.deleted = append(c.deleted, targetID)
	return nil
}

func (c *fakeClient) PurgeDeleted(_ context.Context, targetID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.purgeErr != nil {
		return c.purgeErr
	}
	c.purged = append(c.purged, targetID)
	return nil
}

func (c *fakeClient) RestoreDeleted(_ context.Context, targetID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.restoreErr != nil {
		return c.restoreErr
	}
	c.restored = append(c.restored, targetID)
	return nil
}

func (c *fakeClient) QueryPrincipals(_ context.Context, filter target.Filter) ([]target.Principal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return matchPrincipals(c.active, filter), nil
}

func (c *fakeClient) QueryDeletedPrincipals(_ context.Context, filter target.Filter) ([]target.Principal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return matchPrincipals(c.trash, filter), nil
}

func (c *fakeClient) AssignLicense(_ context.Context, targetID string, skuIDs []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.licenseErr != nil {
		return c.licenseErr
	}
	c.licensed[targetID] = skuIDs
	return nil
}

func matchPrincipals(principals []target.Principal, filter target.Filter) []target.Principal {
	var out []target.Principal
	for _, p := range principals {
		if (filter.SourceImmutableID != "" && p.SourceImmutableID == filter.SourceImmutableID) ||
			(filter.PrincipalName != "" && p.PrincipalName == filter.PrincipalName) {
			out = append(out, p)
		}
	}
	return out
}

// rejected builds the error the target client returns for a rejected
// operation.
func rejected(operation, message string) error {
	return errors.NewRemoteRejectedError(operation, "", 400, message)
}
