/*******************************************************************************
* Copyright 2023 Stefan Majewsky <majewsky@gmx.net>
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package api

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/sapcc/go-bits/assert"

	"github.com/majewsky/dirsync/internal/core"
	"github.com/majewsky/dirsync/internal/syncer"
	"github.com/majewsky/dirsync/internal/test"
)

func setupAPI() (API, *test.RemoteDirectoryDouble, *[]core.Event) {
	remote := test.NewRemoteDirectoryDouble()
	var handled []core.Event
	a := API{
		Remote: remote,
		Handle: func(ctx context.Context, ev core.Event) (syncer.Outcome, error) {
			handled = append(handled, ev)
			switch ev.DN {
			case "uid=full,dc=example,dc=org":
				return syncer.Outcome{Transition: core.TransitionCreate}, core.Errorf(core.ErrLimitReached, "412 Domain user limit reached")
			case "uid=offline,dc=example,dc=org":
				return syncer.Outcome{Transition: core.TransitionModify}, &core.Error{Kind: core.ErrTransportFailure, Transient: true, Cause: errors.New("connection refused")}
			default:
				return syncer.Outcome{Transition: core.TransitionCreate, RemoteID: "12345"}, nil
			}
		},
		PendingEvents: func() ([]string, error) { return []string{"0001.json", "0002.json"}, nil },
	}
	return a, remote, &handled
}

func TestHealthAndState(t *testing.T) {
	a, remote, _ := setupAPI()
	h := a.HTTPHandler()

	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/healthz",
		ExpectStatus: http.StatusOK,
		ExpectBody:   assert.JSONObject{"status": "ok"},
	}.Check(t, h)

	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/state",
		ExpectStatus: http.StatusOK,
		ExpectBody: assert.JSONObject{
			"connected":                 true,
			"waiting_for_authorization": false,
			"pending_events":            2,
		},
	}.Check(t, h)

	authErr := &core.Error{Kind: core.ErrAuthFailure, Transient: true, Cause: errors.New("unauthorized_client")}
	remote.FailNext("GET users?query=&pageToken=", authErr)
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/state",
		ExpectStatus: http.StatusOK,
		ExpectBody: assert.JSONObject{
			"connected":                 false,
			"waiting_for_authorization": true,
			"message":                   core.UserMessage(authErr),
			"pending_events":            2,
		},
	}.Check(t, h)
}

func TestSubmitEvent(t *testing.T) {
	a, _, handled := setupAPI()
	h := a.HTTPHandler()

	assert.HTTPRequest{
		Method: "POST",
		Path:   "/events",
		Body: assert.JSONObject{
			"kind":    "user",
			"dn":      "uid=jane,dc=example,dc=org",
			"command": "add",
			"new":     map[string][]string{"uid": {"jane"}},
		},
		ExpectStatus: http.StatusOK,
		ExpectBody:   assert.JSONObject{"transition": "create", "remote_id": "12345"},
	}.Check(t, h)
	assert.DeepEqual(t, "handled events", *handled, []core.Event{{
		Kind:    core.KindUser,
		DN:      "uid=jane,dc=example,dc=org",
		Command: core.CommandAdd,
		New:     core.Snapshot{"uid": {"jane"}},
	}})

	assert.HTTPRequest{
		Method:       "POST",
		Path:         "/events",
		Body:         assert.JSONObject{"kind": "user", "dn": "uid=full,dc=example,dc=org", "command": "add"},
		ExpectStatus: http.StatusConflict,
		ExpectBody: assert.JSONObject{
			"transition": "create",
			"error":      core.UserMessage(core.Errorf(core.ErrLimitReached, "")),
		},
	}.Check(t, h)

	assert.HTTPRequest{
		Method:       "POST",
		Path:         "/events",
		Body:         assert.JSONObject{"kind": "user", "dn": "uid=offline,dc=example,dc=org", "command": "modify"},
		ExpectStatus: http.StatusServiceUnavailable,
		ExpectBody: assert.JSONObject{
			"transition": "modify",
			"error":      core.UserMessage(&core.Error{Kind: core.ErrTransportFailure}),
		},
	}.Check(t, h)

	assert.HTTPRequest{
		Method:       "POST",
		Path:         "/events",
		Body:         assert.JSONObject{"kind": "user", "flavor": "strawberry"},
		ExpectStatus: http.StatusBadRequest,
	}.Check(t, h)
}

func TestJournalDisabled(t *testing.T) {
	a, _, _ := setupAPI()
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/journal",
		ExpectStatus: http.StatusNotFound,
		ExpectBody:   assert.JSONObject{"error": "journal is not enabled"},
	}.Check(t, a.HTTPHandler())
}
