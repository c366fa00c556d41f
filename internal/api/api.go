/*******************************************************************************
* Copyright 2023 Stefan Majewsky <majewsky@gmx.net>
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

// Package api provides the local admin API of the sync daemon: a health
// check, the connection state, synchronous event submission and (if
// enabled) a view into the journal.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/sapcc/go-bits/logg"

	"github.com/majewsky/dirsync/internal/core"
	"github.com/majewsky/dirsync/internal/journal"
	"github.com/majewsky/dirsync/internal/syncer"
)

// API contains the collaborators that the API handlers talk to.
type API struct {
	Handle syncer.HandlerFunc
	Remote core.RemoteDirectory
	//Optional: lists the event files waiting in the spool.
	PendingEvents func() ([]string, error)
	//Optional: lists the renames that are waiting for their second half.
	PendingRenames func() ([]string, error)
	//Optional.
	Journal *journal.Journal
}

// HTTPHandler returns the main http.Handler.
func (a API) HTTPHandler() http.Handler {
	r := mux.NewRouter()
	r.Methods("GET").Path(`/healthz`).Handler(Do(func(i *Interaction) {
		i.WriteJSON(http.StatusOK, map[string]string{"status": "ok"})
	}))
	r.Methods("GET").Path(`/state`).Handler(Do(a.showState))
	r.Methods("POST").Path(`/events`).Handler(Do(a.processEvent))
	r.Methods("GET").Path(`/journal`).Handler(Do(a.showJournal))
	return r
}

type stateResponse struct {
	syncer.ConnectionState
	PendingEvents  *int `json:"pending_events,omitempty"`
	PendingRenames *int `json:"pending_renames,omitempty"`
}

func (a API) showState(i *Interaction) {
	resp := stateResponse{ConnectionState: syncer.CheckConnection(i.Req.Context(), a.Remote)}
	for _, entry := range []struct {
		List   func() ([]string, error)
		Target **int
	}{
		{a.PendingEvents, &resp.PendingEvents},
		{a.PendingRenames, &resp.PendingRenames},
	} {
		if entry.List == nil {
			continue
		}
		items, err := entry.List()
		if err != nil {
			i.WriteError(err.Error(), http.StatusInternalServerError)
			return
		}
		count := len(items)
		*entry.Target = &count
	}
	i.WriteJSON(http.StatusOK, resp)
}

type eventResponse struct {
	Transition core.Transition `json:"transition,omitempty"`
	RemoteID   string          `json:"remote_id,omitempty"`
	Error      string          `json:"error,omitempty"`
}

func (a API) processEvent(i *Interaction) {
	var ev core.Event
	dec := json.NewDecoder(i.Req.Body)
	dec.DisallowUnknownFields()
	err := dec.Decode(&ev)
	if err != nil {
		i.WriteError("cannot parse event: "+err.Error(), http.StatusBadRequest)
		return
	}

	//the event is processed to completion even if the client goes away
	ctx := context.WithoutCancel(i.Req.Context())
	outcome, err := a.Handle(ctx, ev)
	if err != nil {
		logg.Error("while processing submitted event for %s: %s", ev.DN, err.Error())
		i.WriteJSON(statusCodeFor(err), eventResponse{Transition: outcome.Transition, Error: core.UserMessage(err)})
		return
	}
	i.WriteJSON(http.StatusOK, eventResponse{Transition: outcome.Transition, RemoteID: outcome.RemoteID})
}

func statusCodeFor(err error) int {
	switch core.KindOf(err) {
	case core.ErrConfiguration, core.ErrClassificationAmbiguity:
		return http.StatusUnprocessableEntity
	case core.ErrNotFound:
		return http.StatusNotFound
	case core.ErrConflict, core.ErrLimitReached:
		return http.StatusConflict
	default:
		if core.IsTransient(err) {
			return http.StatusServiceUnavailable
		}
		return http.StatusBadGateway
	}
}

func (a API) showJournal(i *Interaction) {
	if a.Journal == nil {
		i.WriteError("journal is not enabled", http.StatusNotFound)
		return
	}
	limit := 50
	if value := i.Req.URL.Query().Get("limit"); value != "" {
		var err error
		limit, err = strconv.Atoi(value)
		if err != nil || limit <= 0 {
			i.WriteError("invalid value for limit: "+value, http.StatusBadRequest)
			return
		}
	}
	entries, err := a.Journal.Recent(i.Req.Context(), i.Req.URL.Query().Get("dn"), limit)
	if err != nil {
		i.WriteError(err.Error(), http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	i.WriteJSON(http.StatusOK, entries)
}
