/*******************************************************************************
* Copyright 2023 Stefan Majewsky <majewsky@gmx.net>
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package gdirectory

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/sapcc/go-bits/assert"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/majewsky/dirsync/internal/core"
	"github.com/majewsky/dirsync/internal/test"
)

// fakeAPI serves a small subset of the Directory API.
type fakeAPI struct {
	users          map[string]map[string]any //by primaryEmail
	domainRequests int
	lastBody       map[string]any
}

func writeJSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(data) //nolint:errcheck
}

func writeAPIError(w http.ResponseWriter, code int, reason, message string) {
	writeJSON(w, code, map[string]any{"error": map[string]any{
		"code":    code,
		"message": message,
		"errors":  []any{map[string]any{"reason": reason, "message": message}},
	}})
}

func (f *fakeAPI) router() http.Handler {
	r := mux.NewRouter()
	r.Methods("GET").Path("/admin/directory/v1/customer/my_customer/domains").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.domainRequests++
		writeJSON(w, http.StatusOK, map[string]any{"domains": []any{
			map[string]any{"domainName": "example.org", "isPrimary": true},
			map[string]any{"domainName": "example.com", "isPrimary": false},
		}})
	})
	r.Methods("POST").Path("/admin/directory/v1/users").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := f.readBody(r)
		email, _ := body["primaryEmail"].(string)
		if _, exists := f.users[email]; exists {
			writeAPIError(w, http.StatusConflict, "duplicate", "Entity already exists.")
			return
		}
		if email == "overflow@example.org" {
			writeAPIError(w, http.StatusPreconditionFailed, "conditionNotMet", "User creation is not allowed: Domain user limit reached.")
			return
		}
		body["id"] = "1000" + email[:1]
		f.users[email] = body
		writeJSON(w, http.StatusOK, body)
	})
	r.Methods("PATCH").Path("/admin/directory/v1/users/{key}").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, exists := f.users[mux.Vars(r)["key"]]
		if !exists {
			writeAPIError(w, http.StatusNotFound, "notFound", "Resource Not Found: userKey")
			return
		}
		for key, value := range f.readBody(r) {
			if value == nil {
				delete(user, key)
			} else {
				user[key] = value
			}
		}
		writeJSON(w, http.StatusOK, user)
	})
	r.Methods("DELETE").Path("/admin/directory/v1/users/{key}").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := mux.Vars(r)["key"]
		if _, exists := f.users[key]; !exists {
			writeAPIError(w, http.StatusNotFound, "notFound", "Resource Not Found: userKey")
			return
		}
		delete(f.users, key)
		w.WriteHeader(http.StatusNoContent)
	})
	r.Methods("GET").Path("/admin/directory/v1/users").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		//two users per page, paginated by a token that is the email of the next user
		if r.URL.Query().Get("pageToken") == "" {
			writeJSON(w, http.StatusOK, map[string]any{
				"users":         []any{map[string]any{"primaryEmail": "a@example.org"}, map[string]any{"primaryEmail": "b@example.org"}},
				"nextPageToken": "c@example.org",
			})
		} else {
			writeJSON(w, http.StatusOK, map[string]any{
				"users": []any{map[string]any{"primaryEmail": r.URL.Query().Get("pageToken")}},
			})
		}
	})
	r.Methods("POST").Path("/admin/directory/v1/groups/{group}/members").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := f.readBody(r)
		body["kind"] = "admin#directory#member"
		writeJSON(w, http.StatusOK, body)
	})
	r.Methods("GET").Path("/admin/directory/v1/groups/{group}/members").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"members": []any{
			map[string]any{"id": "10001", "role": "MEMBER"},
		}})
	})
	return r
}

func (f *fakeAPI) readBody(r *http.Request) map[string]any {
	buf, _ := io.ReadAll(r.Body)
	var body map[string]any
	json.Unmarshal(buf, &body) //nolint:errcheck
	f.lastBody = make(map[string]any, len(body))
	for k, v := range body {
		f.lastBody[k] = v
	}
	return body
}

func setupClient(t *testing.T) (*Client, *fakeAPI) {
	t.Helper()
	f := &fakeAPI{users: make(map[string]map[string]any)}
	srv := httptest.NewServer(f.router())
	t.Cleanup(srv.Close)

	c, err := NewClientWithOptions(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	test.ExpectNoError(t, err)
	return c, f
}

func TestCreateUser(t *testing.T) {
	ctx := context.Background()
	c, f := setupClient(t)

	doc := core.Document{
		"primaryEmail": core.String("jane doe@unknown.example"),
		"name":         core.Mapping{"givenName": core.String("Jane"), "familyName": core.String("Doe")},
		"suspended":    core.Bool(false),
		"externalIds":  core.Sequence{core.Mapping{"type": core.String("custom"), "customType": core.String("entryUUID"), "value": core.String("1234")}},
	}
	created, err := c.Create(ctx, core.ResourceUsers, doc)
	test.ExpectNoError(t, err)

	//email was fixed, and false was sent explicitly
	assert.DeepEqual(t, "primaryEmail", f.lastBody["primaryEmail"], any("jane_doe@example.org"))
	assert.DeepEqual(t, "suspended", f.lastBody["suspended"], any(false))
	id, _ := created.GetString("id")
	assert.DeepEqual(t, "id", id, "1000j")
	//the input document is not modified
	email, _ := doc.GetString("primaryEmail")
	assert.DeepEqual(t, "input email", email, "jane doe@unknown.example")

	//a second creation conflicts, and the error names the address that was actually sent
	_, err = c.Create(ctx, core.ResourceUsers, core.Document{"primaryEmail": core.String("jane doe@unknown.example")})
	assert.DeepEqual(t, "error kind", core.KindOf(err), core.ErrConflict)
	var cerr *core.Error
	if errors.As(err, &cerr) {
		assert.DeepEqual(t, "conflicting key", cerr.Key, "jane_doe@example.org")
	} else {
		t.Errorf("expected *core.Error, got %#v", err)
	}

	_, err = c.Create(ctx, core.ResourceUsers, core.Document{"primaryEmail": core.String("overflow@example.org")})
	assert.DeepEqual(t, "error kind", core.KindOf(err), core.ErrLimitReached)
}

func TestPatchAndDeleteUser(t *testing.T) {
	ctx := context.Background()
	c, f := setupClient(t)
	f.users["jane@example.com"] = map[string]any{"id": "1", "primaryEmail": "jane@example.com", "phones": []any{}, "orgUnitPath": "/"}

	patched, err := c.Patch(ctx, core.ResourceUsers, "jane@example.com", core.Document{
		"phones":      core.Null{},
		"orgUnitPath": core.String("/staff"),
	})
	test.ExpectNoError(t, err)
	assert.DeepEqual(t, "request body", f.lastBody, map[string]any{"phones": nil, "orgUnitPath": "/staff"})
	_, hasPhones := patched["phones"]
	assert.DeepEqual(t, "phones still present", hasPhones, false)

	_, err = c.Patch(ctx, core.ResourceUsers, "john@example.com", core.Document{"orgUnitPath": core.String("/")})
	assert.DeepEqual(t, "error kind", core.KindOf(err), core.ErrNotFound)

	test.ExpectNoError(t, c.Delete(ctx, core.ResourceUsers, "jane@example.com"))
	err = c.Delete(ctx, core.ResourceUsers, "jane@example.com")
	assert.DeepEqual(t, "error kind", core.KindOf(err), core.ErrNotFound)
}

func TestListUsers(t *testing.T) {
	c, _ := setupClient(t)
	var emails []string
	for doc, err := range core.IterateRemote(context.Background(), c, core.ResourceUsers, "") {
		test.ExpectNoError(t, err)
		email, _ := doc.GetString("primaryEmail")
		emails = append(emails, email)
	}
	assert.DeepEqual(t, "emails", emails, []string{"a@example.org", "b@example.org", "c@example.org"})
}

func TestMembers(t *testing.T) {
	ctx := context.Background()
	c, f := setupClient(t)

	_, err := c.AddMember(ctx, "staff@example.org", "10001", "MEMBER")
	test.ExpectNoError(t, err)
	assert.DeepEqual(t, "request body", f.lastBody, map[string]any{"id": "10001", "role": "MEMBER"})

	_, err = c.AddMember(ctx, "staff@example.org", "jane@example.org", "MEMBER")
	test.ExpectNoError(t, err)
	assert.DeepEqual(t, "request body", f.lastBody, map[string]any{"email": "jane@example.org", "role": "MEMBER"})

	members, err := c.ListMembers(ctx, "staff@example.org")
	test.ExpectNoError(t, err)
	assert.DeepEqual(t, "member count", len(members), 1)
}

func TestDomainCache(t *testing.T) {
	ctx := context.Background()
	c, f := setupClient(t)
	now := time.Unix(1700000000, 0)
	c.now = func() time.Time { return now }

	for range 3 {
		domain, err := c.PrimaryDomain(ctx)
		test.ExpectNoError(t, err)
		assert.DeepEqual(t, "primary domain", domain, "example.org")
	}
	assert.DeepEqual(t, "domain requests", f.domainRequests, 1)

	now = now.Add(6 * time.Minute)
	_, err := c.PrimaryDomain(ctx)
	test.ExpectNoError(t, err)
	assert.DeepEqual(t, "domain requests", f.domainRequests, 2)
}

func TestClassifyError(t *testing.T) {
	apiError := func(code int, reason, message string) error {
		return &googleapi.Error{Code: code, Message: message, Errors: []googleapi.ErrorItem{{Reason: reason, Message: message}}}
	}
	testCases := []struct {
		Input     error
		Kind      core.ErrorKind
		Transient bool
	}{
		{apiError(404, "notFound", "Resource Not Found"), core.ErrNotFound, false},
		{apiError(409, "duplicate", "Entity already exists."), core.ErrConflict, false},
		{apiError(412, "conditionNotMet", "Domain user limit reached"), core.ErrLimitReached, false},
		{apiError(412, "conditionNotMet", "Precondition failed"), core.ErrTransportFailure, false},
		{apiError(401, "authError", "Invalid Credentials"), core.ErrAuthFailure, false},
		{apiError(403, "forbidden", "Not Authorized to access this resource/api"), core.ErrAuthFailure, true},
		{apiError(403, "userRateLimitExceeded", "Rate limit exceeded"), core.ErrTransportFailure, true},
		{apiError(429, "rateLimitExceeded", "Rate limit exceeded"), core.ErrTransportFailure, true},
		{apiError(503, "backendError", "Service unavailable"), core.ErrTransportFailure, true},
		{&oauth2.RetrieveError{ErrorCode: "unauthorized_client"}, core.ErrAuthFailure, true},
		{&oauth2.RetrieveError{ErrorCode: "invalid_grant"}, core.ErrAuthFailure, false},
		{errors.New("connection refused"), core.ErrTransportFailure, true},
		{context.Canceled, core.ErrTransportFailure, false},
	}
	for _, tc := range testCases {
		err := classifyError(tc.Input, "create", core.ResourceUsers, "jane@example.org")
		assert.DeepEqual(t, "kind for "+tc.Input.Error(), core.KindOf(err), tc.Kind)
		assert.DeepEqual(t, "transience for "+tc.Input.Error(), core.IsTransient(err), tc.Transient)
		if !errors.Is(err, tc.Input) {
			t.Errorf("expected %q to wrap %q", err.Error(), tc.Input.Error())
		}
	}
}

func TestFixEmailAddress(t *testing.T) {
	domains := []string{"example.org", "Example.com"}
	assert.DeepEqual(t, "known domain", fixEmailAddress("jane@example.com", domains, "example.org"), "jane@example.com")
	assert.DeepEqual(t, "spaces", fixEmailAddress("jane doe@example.org", domains, "example.org"), "jane_doe@example.org")
	assert.DeepEqual(t, "unknown domain", fixEmailAddress("jane@elsewhere.net", domains, "example.org"), "jane@example.org")

	fixed := fixEmailAddress("@example.org", domains, "example.org")
	if !strings.HasSuffix(fixed, "@example.org") || len(fixed) != 16+len("@example.org") {
		t.Errorf("expected random local part, but got %q", fixed)
	}
}
