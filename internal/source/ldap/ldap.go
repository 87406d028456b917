// Package ldap adapts an LDAP directory to the source.Reader interface.
package ldap

import (
	"context"
	"crypto/tls"
	"strings"

	goldap "github.com/go-ldap/ldap/v3"

	"github.com/dirbridge/dirbridge/pkg/errors"
	"github.com/dirbridge/dirbridge/pkg/logging"
	"github.com/dirbridge/dirbridge/pkg/source"
)

// pageSize bounds each search result page. Directory servers commonly
// cap unpaged results at 1000 entries.
const pageSize = 500

// Config carries the connection settings for the source directory.
type Config struct {
	// URL is the directory address, ldap:// or ldaps://.
	URL string

	// BindDN and BindPassword authenticate the search connection. Empty
	// values perform an anonymous bind.
	BindDN       string
	BindPassword string

	// InsecureSkipVerify disables TLS certificate verification. Meant
	// for lab directories with self-signed certificates.
	InsecureSkipVerify bool

	// BinaryAttributes names attributes whose values are raw bytes
	// rather than text, such as objectGUID.
	BinaryAttributes []string
}

// Reader is an LDAP-backed source.Reader. One Reader wraps one
// connection; it is not safe for concurrent searches.
type Reader struct {
	conn   *goldap.Conn
	binary map[string]bool
}

var _ source.Reader = (*Reader)(nil)

// Open dials and binds a fresh directory connection.
func Open(ctx context.Context, cfg Config) (*Reader, error) {
	if cfg.URL == "" {
		return nil, &errors.ConfigError{Component: "ldap", Message: "url cannot be empty"}
	}

	var dialOpts []goldap.DialOpt
	if cfg.InsecureSkipVerify {
		dialOpts = append(dialOpts, goldap.DialWithTLSConfig(&tls.Config{InsecureSkipVerify: true})) //nolint:gosec
	}

	conn, err := goldap.DialURL(cfg.URL, dialOpts...)
	if err != nil {
		return nil, errors.NewDirectoryConnectionError("source", cfg.URL, err)
	}

	if cfg.BindDN != "" {
		err = conn.Bind(cfg.BindDN, cfg.BindPassword)
	} else {
		err = conn.UnauthenticatedBind("")
	}
	if err != nil {
		_ = conn.Close()
		return nil, errors.NewDirectoryConnectionError("source", cfg.URL, err)
	}

	logging.FromContext(ctx).Debug().Str("url", cfg.URL).Msg("Connected to source directory")

	binary := make(map[string]bool, len(cfg.BinaryAttributes))
	for _, attr := range cfg.BinaryAttributes {
		binary[strings.ToLower(attr)] = true
	}
	return &Reader{conn: conn, binary: binary}, nil
}

// Factory returns a factory opening a fresh reader per call. Each
// reconciliation run gets its own connection.
func Factory(cfg Config) func(ctx context.Context) (source.Reader, error) {
	return func(ctx context.Context) (source.Reader, error) {
		return Open(ctx, cfg)
	}
}

// Search runs a paged whole-subtree search and converts the entries.
func (r *Reader) Search(ctx context.Context, base, filter string, attributes []string) ([]source.Entry, error) {
	req := goldap.NewSearchRequest(
		base,
		goldap.ScopeWholeSubtree,
		goldap.NeverDerefAliases,
		0, 0, false,
		filter,
		attributes,
		nil,
	)

	res, err := r.conn.SearchWithPaging(req, pageSize)
	if err != nil {
		return nil, errors.NewDirectoryConnectionError("source", base, err)
	}

	logging.FromContext(ctx).Debug().
		Int("entries", len(res.Entries)).
		Str("base", base).
		Str("filter", filter).
		Msg("Source search finished")

	entries := make([]source.Entry, 0, len(res.Entries))
	for _, e := range res.Entries {
		entries = append(entries, r.convert(e))
	}
	return entries, nil
}

// Close terminates the directory connection.
func (r *Reader) Close() error {
	return r.conn.Close()
}

// convert maps an LDAP entry to the engine's source shape. Multi-valued
// attributes keep their first value; binary attributes carry raw bytes.
func (r *Reader) convert(e *goldap.Entry) source.Entry {
	attrs := make(map[string]source.Attribute, len(e.Attributes))
	for _, attr := range e.Attributes {
		if len(attr.Values) == 0 && len(attr.ByteValues) == 0 {
			continue
		}

		a := source.Attribute{}
		if r.binary[strings.ToLower(attr.Name)] {
			a.Binary = true
			if len(attr.ByteValues) > 0 {
				a.Raw = attr.ByteValues[0]
			}
		} else if len(attr.Values) > 0 {
			a.Value = attr.Values[0]
		}
		attrs[attr.Name] = a
	}
	return source.NewEntry(e.DN, attrs)
}
