// Package graph implements the target.Client interface against a
// Microsoft Graph style directory API, authenticated with OAuth2 client
// credentials.
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/dirbridge/dirbridge/pkg/errors"
	"github.com/dirbridge/dirbridge/pkg/logging"
	"github.com/dirbridge/dirbridge/pkg/target"
)

const (
	defaultBaseURL = "https://graph.microsoft.com/v1.0"
	defaultScope   = "https://graph.microsoft.com/.default"
	tokenURLFormat = "https://login.microsoftonline.com/%s/oauth2/v2.0/token"

	requestTimeout = 30 * time.Second
)

// Config carries the credentials and endpoints of the target directory.
type Config struct {
	TenantID     string
	ClientID     string
	ClientSecret string

	// BaseURL overrides the service endpoint. Defaults to the public
	// Graph v1.0 endpoint; tests point it at a local server.
	BaseURL string
}

// Client is the HTTP implementation of target.Client.
type Client struct {
	http    *http.Client
	baseURL string
}

var _ target.Client = (*Client)(nil)

// New creates a client authenticating with the client credentials grant.
// The token source refreshes transparently.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.TenantID == "" || cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, &errors.ConfigError{Component: "graph", Message: "tenantId, clientId and clientSecret are required"}
	}

	creds := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     fmt.Sprintf(tokenURLFormat, cfg.TenantID),
		Scopes:       []string{defaultScope},
	}

	httpClient := creds.Client(ctx)
	httpClient.Timeout = requestTimeout
	return NewWithHTTPClient(httpClient, cfg.BaseURL), nil
}

// NewWithHTTPClient creates a client over a pre-built HTTP client. Tests
// use it to skip the token exchange.
func NewWithHTTPClient(httpClient *http.Client, baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{http: httpClient, baseURL: strings.TrimRight(baseURL, "/")}
}

// principal is the wire shape of a directory user.
type principal struct {
	ID                string           `json:"id,omitempty"`
	AccountEnabled    *bool            `json:"accountEnabled,omitempty"`
	GivenName         string           `json:"givenName,omitempty"`
	Surname           string           `json:"surname,omitempty"`
	DisplayName       string           `json:"displayName,omitempty"`
	MailNickname      string           `json:"mailNickname,omitempty"`
	UserPrincipalName string           `json:"userPrincipalName,omitempty"`
	ImmutableID       string           `json:"onPremisesImmutableId,omitempty"`
	UsageLocation     string           `json:"usageLocation,omitempty"`
	PasswordPolicies  string           `json:"passwordPolicies,omitempty"`
	PasswordProfile   *passwordProfile `json:"passwordProfile,omitempty"`
}

type passwordProfile struct {
	Password                      string `json:"password"`
	ForceChangePasswordNextSignIn bool   `json:"forceChangePasswordNextSignIn"`
}

type principalList struct {
	Value []principal `json:"value"`
}

// apiError is the error envelope the service wraps rejections in.
type apiError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// CreatePrincipal creates a directory user and returns its id.
func (c *Client) CreatePrincipal(ctx context.Context, req target.CreateRequest) (string, error) {
	enabled := req.AccountEnabled
	body := principal{
		AccountEnabled:    &enabled,
		GivenName:         req.GivenName,
		Surname:           req.Surname,
		DisplayName:       req.DisplayName,
		MailNickname:      req.MailNickname,
		UserPrincipalName: req.PrincipalName,
		ImmutableID:       req.SourceImmutableID,
		UsageLocation:     req.UsageLocation,
		PasswordPolicies:  req.PasswordPolicies,
		PasswordProfile: &passwordProfile{
			Password:                      req.Password,
			ForceChangePasswordNextSignIn: req.ForcePasswordChange,
		},
	}

	var created principal
	if err := c.do(ctx, http.MethodPost, "/users", "", body, &created); err != nil {
		return "", err
	}
	logging.FromContext(ctx).Debug().Str("target_id", created.ID).Msg("Principal created in target directory")
	return created.ID, nil
}

// PatchPrincipal replaces the principal's mutable attribute set.
func (c *Client) PatchPrincipal(ctx context.Context, targetID string, attrs target.Attributes) error {
	body := principal{
		GivenName:         attrs.GivenName,
		Surname:           attrs.Surname,
		DisplayName:       attrs.DisplayName,
		MailNickname:      attrs.MailNickname,
		UserPrincipalName: attrs.PrincipalName,
		ImmutableID:       attrs.SourceImmutableID,
	}
	return c.do(ctx, http.MethodPatch, "/users/"+url.PathEscape(targetID), targetID, body, nil)
}

// DeletePrincipal removes the principal into the directory trash.
func (c *Client) DeletePrincipal(ctx context.Context, targetID string) error {
	return c.do(ctx, http.MethodDelete, "/users/"+url.PathEscape(targetID), targetID, nil, nil)
}

// PurgeDeleted permanently removes a soft-deleted principal.
func (c *Client) PurgeDeleted(ctx context.Context, targetID string) error {
	return c.do(ctx, http.MethodDelete, "/directory/deletedItems/"+url.PathEscape(targetID), targetID, nil, nil)
}

// RestoreDeleted restores a soft-deleted principal from the trash.
func (c *Client) RestoreDeleted(ctx context.Context, targetID string) error {
	return c.do(ctx, http.MethodPost, "/directory/deletedItems/"+url.PathEscape(targetID)+"/restore", targetID, nil, nil)
}

// QueryPrincipals returns active principals matching the filter.
func (c *Client) QueryPrincipals(ctx context.Context, filter target.Filter) ([]target.Principal, error) {
	return c.query(ctx, "/users", filter, false)
}

// QueryDeletedPrincipals returns soft-deleted principals matching the
// filter.
func (c *Client) QueryDeletedPrincipals(ctx context.Context, filter target.Filter) ([]target.Principal, error) {
	return c.query(ctx, "/directory/deletedItems/microsoft.graph.user", filter, true)
}

// AssignLicense assigns the given license SKUs to the principal.
func (c *Client) AssignLicense(ctx context.Context, targetID string, skuIDs []string) error {
	type addLicense struct {
		SKUID string `json:"skuId"`
	}
	body := struct {
		AddLicenses    []addLicense `json:"addLicenses"`
		RemoveLicenses []string     `json:"removeLicenses"`
	}{RemoveLicenses: []string{}}
	for _, sku := range skuIDs {
		body.AddLicenses = append(body.AddLicenses, addLicense{SKUID: sku})
	}
	return c.do(ctx, http.MethodPost, "/users/"+url.PathEscape(targetID)+"/assignLicense", targetID, body, nil)
}

func (c *Client) query(ctx context.Context, path string, filter target.Filter, softDeleted bool) ([]target.Principal, error) {
	var clauses []string
	if filter.SourceImmutableID != "" {
		clauses = append(clauses, fmt.Sprintf("onPremisesImmutableId eq '%s'", escapeODataString(filter.SourceImmutableID)))
	}
	if filter.PrincipalName != "" {
		clauses = append(clauses, fmt.Sprintf("userPrincipalName eq '%s'", escapeODataString(filter.PrincipalName)))
	}
	if len(clauses) == 0 {
		return nil, &errors.ValidationError{Field: "filter", Message: "requires a source immutable id or principal name"}
	}

	q := url.Values{}
	q.Set("$filter", strings.Join(clauses, " or "))

	var list principalList
	if err := c.do(ctx, http.MethodGet, path+"?"+q.Encode(), "", nil, &list); err != nil {
		return nil, err
	}

	out := make([]target.Principal, 0, len(list.Value))
	for _, p := range list.Value {
		out = append(out, target.Principal{
			ID:                p.ID,
			SourceImmutableID: p.ImmutableID,
			GivenName:         p.GivenName,
			Surname:           p.Surname,
			DisplayName:       p.DisplayName,
			PrincipalName:     p.UserPrincipalName,
			SoftDeleted:       softDeleted,
		})
	}
	return out, nil
}

// do executes one request and decodes the response into out when given.
// Non-2xx responses become RemoteRejectedError with the service message.
func (c *Client) do(ctx context.Context, method, path, targetID string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.NewDirectoryConnectionError("target", c.baseURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.rejection(resp, method+" "+path, targetID)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errors.NewRemoteRejectedError(method+" "+path, targetID, resp.StatusCode, "undecodable response body")
		}
	}
	return nil
}

// rejection converts an error response into a RemoteRejectedError,
// carrying the service's own message when it can be decoded.
func (c *Client) rejection(resp *http.Response, operation, targetID string) error {
	message := resp.Status
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err == nil && len(raw) > 0 {
		var decoded apiError
		if json.Unmarshal(raw, &decoded) == nil && decoded.Error.Message != "" {
			message = decoded.Error.Message
			if decoded.Error.Code != "" {
				message = decoded.Error.Code + ": " + message
			}
		}
	}
	return errors.NewRemoteRejectedError(operation, targetID, resp.StatusCode, message)
}

// escapeODataString doubles single quotes per the OData literal rules.
func escapeODataString(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
