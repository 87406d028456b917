package reconcile

import (
	"github.com/dirbridge/dirbridge/pkg/errors"
	"github.com/dirbridge/dirbridge/pkg/record"
)

// Patterns holds the build patterns rendering a record's logical
// attributes from source entry attributes.
type Patterns struct {
	SourceImmutableID string
	GivenName         string
	Surname           string
	DisplayName       string
	MailNickname      string
	PrincipalName     string
}

// validate ensures every pattern is set; the engine cannot classify
// records without a complete attribute mapping.
func (p Patterns) validate() error {
	fields := map[string]string{
		"sourceImmutableId": p.SourceImmutableID,
		"givenName":         p.GivenName,
		"surname":           p.Surname,
		"displayName":       p.DisplayName,
		"mailNickname":      p.MailNickname,
		"principalName":     p.PrincipalName,
	}
	for name, pattern := range fields {
		if pattern == "" {
			return &errors.ValidationError{Field: name, Message: "pattern cannot be empty"}
		}
	}
	return nil
}

// options configures an engine.
type options struct {
	patterns       Patterns
	searchBase     string
	searchFilter   string
	attributes     []string
	workers        int
	deleteBehavior record.DeleteBehavior
	usageLocation  string
	licenseSKUs    []string
	foldASCII      bool
	passwordLength int
}

func defaultOptions() *options {
	return &options{
		searchFilter:   "(objectClass=person)",
		workers:        4,
		deleteBehavior: record.DeleteSoft,
		passwordLength: 24,
	}
}

// Option is a function that configures an engine.
type Option func(*options) error

func newOptions(opts ...Option) (*options, error) {
	options := defaultOptions()
	for _, opt := range opts {
		if err := opt(options); err != nil {
			return nil, err
		}
	}
	if err := options.patterns.validate(); err != nil {
		return nil, err
	}
	return options, nil
}

// WithPatterns sets the attribute build patterns. Required.
func WithPatterns(patterns Patterns) Option {
	return func(o *options) error {
		o.patterns = patterns
		return nil
	}
}

// WithSearch sets the source directory search base, filter and requested
// attribute names.
func WithSearch(base, filter string, attributes []string) Option {
	return func(o *options) error {
		if base == "" {
			return &errors.ValidationError{Field: "searchBase", Message: "cannot be empty"}
		}
		o.searchBase = base
		if filter != "" {
			o.searchFilter = filter
		}
		o.attributes = attributes
		return nil
	}
}

// WithWorkers bounds the per-phase apply concurrency against the target
// directory.
func WithWorkers(n int) Option {
	return func(o *options) error {
		if n < 1 {
			return &errors.ValidationError{Field: "workers", Value: n, Message: "must be at least 1"}
		}
		o.workers = n
		return nil
	}
}

// WithDeleteBehavior selects the soft or hard deletion policy.
func WithDeleteBehavior(behavior record.DeleteBehavior) Option {
	return func(o *options) error {
		switch behavior {
		case record.DeleteSoft, record.DeleteHard:
			o.deleteBehavior = behavior
			return nil
		}
		return &errors.ValidationError{Field: "deleteBehavior", Value: string(behavior), Message: "must be soft or hard"}
	}
}

// WithUsageLocation sets the usage location stamped on created principals.
func WithUsageLocation(location string) Option {
	return func(o *options) error {
		o.usageLocation = location
		return nil
	}
}

// WithLicenseSKUs enables automatic license assignment for created
// principals with the given SKU ids.
func WithLicenseSKUs(skuIDs []string) Option {
	return func(o *options) error {
		o.licenseSKUs = skuIDs
		return nil
	}
}

// WithASCIIFold folds rendered mail nicknames and principal names to
// ASCII, stripping diacritics the target directory rejects.
func WithASCIIFold(enabled bool) Option {
	return func(o *options) error {
		o.foldASCII = enabled
		return nil
	}
}
