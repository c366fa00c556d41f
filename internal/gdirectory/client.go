/*******************************************************************************
* Copyright 2023 Stefan Majewsky <majewsky@gmx.net>
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

// Package gdirectory implements the remote directory on top of the Google
// Admin SDK Directory API.
package gdirectory

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sapcc/go-bits/logg"
	"golang.org/x/oauth2/google"
	admin "google.golang.org/api/admin/directory/v1"
	"google.golang.org/api/option"

	"github.com/majewsky/dirsync/internal/core"
)

const (
	myCustomer     = "my_customer"
	domainCacheTTL = 5 * time.Minute
)

// Client implements core.RemoteDirectory.
type Client struct {
	svc *admin.Service

	domainMutex     sync.Mutex
	domains         []string
	primaryDomain   string
	domainsCachedAt time.Time
	now             func() time.Time
}

// NewClient builds a Client that authenticates as the service account from
// the given JSON key file, acting on behalf of the given admin user
// (domain-wide delegation).
func NewClient(ctx context.Context, credentialsPath, adminEmail string) (*Client, error) {
	key, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("cannot read service account credentials: %w", err)
	}
	cfg, err := google.JWTConfigFromJSON(key,
		admin.AdminDirectoryUserScope,
		admin.AdminDirectoryGroupScope,
		admin.AdminDirectoryDomainReadonlyScope,
	)
	if err != nil {
		return nil, fmt.Errorf("cannot parse service account credentials: %w", err)
	}
	cfg.Subject = adminEmail
	return NewClientWithOptions(ctx, option.WithHTTPClient(cfg.Client(ctx)))
}

// NewClientWithOptions builds a Client with explicit API client options.
func NewClientWithOptions(ctx context.Context, opts ...option.ClientOption) (*Client, error) {
	svc, err := admin.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("cannot initialize Directory API client: %w", err)
	}
	return &Client{svc: svc, now: time.Now}, nil
}

func errUnknownResourceType(rt core.ResourceType) error {
	return core.Errorf(core.ErrConfiguration, "unknown resource type: %q", string(rt))
}

// Create implements the core.RemoteDirectory interface.
func (c *Client) Create(ctx context.Context, rt core.ResourceType, doc core.Document) (core.Document, error) {
	doc, err := c.fixEmail(ctx, rt, doc)
	if err != nil {
		return nil, err
	}
	key, _ := doc.GetString(emailField(rt))

	var result any
	switch rt {
	case core.ResourceUsers:
		var u admin.User
		err = fromDocument(doc, &u, &u.ForceSendFields, &u.NullFields)
		if err == nil {
			result, err = c.svc.Users.Insert(&u).Context(ctx).Do()
		}
	case core.ResourceGroups:
		var g admin.Group
		err = fromDocument(doc, &g, &g.ForceSendFields, &g.NullFields)
		if err == nil {
			result, err = c.svc.Groups.Insert(&g).Context(ctx).Do()
		}
	default:
		return nil, errUnknownResourceType(rt)
	}
	if err != nil {
		return nil, classifyError(err, "create", rt, key)
	}
	return toDocument(result)
}

// Get implements the core.RemoteDirectory interface.
func (c *Client) Get(ctx context.Context, rt core.ResourceType, key string) (core.Document, error) {
	var (
		result any
		err    error
	)
	switch rt {
	case core.ResourceUsers:
		result, err = c.svc.Users.Get(key).Context(ctx).Do()
	case core.ResourceGroups:
		result, err = c.svc.Groups.Get(key).Context(ctx).Do()
	default:
		return nil, errUnknownResourceType(rt)
	}
	if err != nil {
		return nil, classifyError(err, "get", rt, key)
	}
	return toDocument(result)
}

// Patch implements the core.RemoteDirectory interface.
func (c *Client) Patch(ctx context.Context, rt core.ResourceType, key string, doc core.Document) (core.Document, error) {
	doc, err := c.fixEmail(ctx, rt, doc)
	if err != nil {
		return nil, err
	}

	var result any
	switch rt {
	case core.ResourceUsers:
		var u admin.User
		err = fromDocument(doc, &u, &u.ForceSendFields, &u.NullFields)
		if err == nil {
			result, err = c.svc.Users.Patch(key, &u).Context(ctx).Do()
		}
	case core.ResourceGroups:
		var g admin.Group
		err = fromDocument(doc, &g, &g.ForceSendFields, &g.NullFields)
		if err == nil {
			result, err = c.svc.Groups.Patch(key, &g).Context(ctx).Do()
		}
	default:
		return nil, errUnknownResourceType(rt)
	}
	if err != nil {
		return nil, classifyError(err, "update", rt, key)
	}
	return toDocument(result)
}

// Delete implements the core.RemoteDirectory interface.
func (c *Client) Delete(ctx context.Context, rt core.ResourceType, key string) error {
	var err error
	switch rt {
	case core.ResourceUsers:
		err = c.svc.Users.Delete(key).Context(ctx).Do()
	case core.ResourceGroups:
		err = c.svc.Groups.Delete(key).Context(ctx).Do()
	default:
		return errUnknownResourceType(rt)
	}
	return classifyError(err, "delete", rt, key)
}

// List implements the core.RemoteDirectory interface.
func (c *Client) List(ctx context.Context, rt core.ResourceType, opts core.ListOptions) (core.ListPage, error) {
	var (
		items     []any
		nextToken string
	)
	switch rt {
	case core.ResourceUsers:
		call := c.svc.Users.List().Customer(myCustomer).Context(ctx)
		if opts.Query != "" {
			call = call.Query(opts.Query)
		}
		if opts.PageToken != "" {
			call = call.PageToken(opts.PageToken)
		}
		if opts.MaxResults > 0 {
			call = call.MaxResults(opts.MaxResults)
		}
		result, err := call.Do()
		if err != nil {
			return core.ListPage{}, classifyError(err, "list", rt, opts.Query)
		}
		for _, u := range result.Users {
			items = append(items, u)
		}
		nextToken = result.NextPageToken
	case core.ResourceGroups:
		call := c.svc.Groups.List().Customer(myCustomer).Context(ctx)
		if opts.Query != "" {
			call = call.Query(opts.Query)
		}
		if opts.PageToken != "" {
			call = call.PageToken(opts.PageToken)
		}
		if opts.MaxResults > 0 {
			call = call.MaxResults(opts.MaxResults)
		}
		result, err := call.Do()
		if err != nil {
			return core.ListPage{}, classifyError(err, "list", rt, opts.Query)
		}
		for _, g := range result.Groups {
			items = append(items, g)
		}
		nextToken = result.NextPageToken
	default:
		return core.ListPage{}, errUnknownResourceType(rt)
	}

	page := core.ListPage{NextPageToken: nextToken}
	for _, item := range items {
		doc, err := toDocument(item)
		if err != nil {
			return core.ListPage{}, err
		}
		page.Items = append(page.Items, doc)
	}
	return page, nil
}

// ListMembers implements the core.RemoteDirectory interface.
func (c *Client) ListMembers(ctx context.Context, groupKey string) ([]core.Document, error) {
	var result []core.Document
	err := c.svc.Members.List(groupKey).Pages(ctx, func(page *admin.Members) error {
		for _, m := range page.Members {
			doc, err := toDocument(m)
			if err != nil {
				return err
			}
			result = append(result, doc)
		}
		return nil
	})
	if err != nil {
		return nil, classifyError(err, "list members of", core.ResourceGroups, groupKey)
	}
	return result, nil
}

// AddMember implements the core.RemoteDirectory interface. The member key
// may be an ID or an email address.
func (c *Client) AddMember(ctx context.Context, groupKey, memberKey, role string) (core.Document, error) {
	m := admin.Member{Role: role}
	if strings.Contains(memberKey, "@") {
		m.Email = memberKey
	} else {
		m.Id = memberKey
	}
	result, err := c.svc.Members.Insert(groupKey, &m).Context(ctx).Do()
	if err != nil {
		return nil, classifyError(err, "add member to", core.ResourceGroups, groupKey)
	}
	return toDocument(result)
}

// RemoveMember implements the core.RemoteDirectory interface.
func (c *Client) RemoveMember(ctx context.Context, groupKey, memberKey string) error {
	err := c.svc.Members.Delete(groupKey, memberKey).Context(ctx).Do()
	return classifyError(err, "remove member from", core.ResourceGroups, groupKey)
}

// PrimaryDomain implements the core.RemoteDirectory interface.
func (c *Client) PrimaryDomain(ctx context.Context) (string, error) {
	_, primary, err := c.listDomains(ctx)
	return primary, err
}

// listDomains returns the domains registered with the remote directory. The
// result is cached for a few minutes.
func (c *Client) listDomains(ctx context.Context) (domains []string, primary string, err error) {
	c.domainMutex.Lock()
	defer c.domainMutex.Unlock()

	if c.domains != nil && c.now().Sub(c.domainsCachedAt) < domainCacheTTL {
		return c.domains, c.primaryDomain, nil
	}

	result, err := c.svc.Domains.List(myCustomer).Context(ctx).Do()
	if err != nil {
		return nil, "", classifyError(err, "list", "domains", myCustomer)
	}
	domains = []string{}
	for _, d := range result.Domains {
		domains = append(domains, d.DomainName)
		if d.IsPrimary {
			primary = d.DomainName
		}
	}
	if primary == "" {
		return nil, "", core.Errorf(core.ErrConfiguration, "remote directory does not have a primary domain")
	}
	logg.Debug("remote directory has domains %v (primary: %s)", domains, primary)

	c.domains = domains
	c.primaryDomain = primary
	c.domainsCachedAt = c.now()
	return domains, primary, nil
}

// fixEmail applies fixEmailAddress to the email property of the document.
func (c *Client) fixEmail(ctx context.Context, rt core.ResourceType, doc core.Document) (core.Document, error) {
	field := emailField(rt)
	address, ok := doc.GetString(field)
	if !ok {
		return doc, nil
	}
	domains, primary, err := c.listDomains(ctx)
	if err != nil {
		return nil, err
	}
	fixed := fixEmailAddress(address, domains, primary)
	if fixed == address {
		return doc, nil
	}
	logg.Info("replacing invalid email address %q with %q", address, fixed)
	doc = doc.Clone()
	doc[field] = core.String(fixed)
	return doc, nil
}
