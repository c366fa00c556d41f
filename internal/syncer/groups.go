/*******************************************************************************
* Copyright 2023 Stefan Majewsky <majewsky@gmx.net>
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package syncer

import (
	"context"
	"fmt"

	"github.com/sapcc/go-bits/logg"

	"github.com/majewsky/dirsync/internal/core"
	"github.com/majewsky/dirsync/internal/resource"
)

const memberRole = "MEMBER"

var mandatoryGroupProperties = map[string]bool{
	"name":  true,
	"email": true,
}

func (o *Orchestrator) handleGroup(ctx context.Context, ev core.Event) (Outcome, error) {
	transition := core.Classify(ev.Old, ev.New, "")
	logg.Debug("classified event for group %s as %s", ev.DN, transition)

	switch transition {
	case core.TransitionCreate:
		hasMembers, err := o.hasEligibleMembers(ctx, ev.DN)
		if err != nil || !hasMembers {
			if err == nil {
				logg.Debug("not creating group %s in remote directory: no synced members", ev.DN)
			}
			return Outcome{Transition: transition}, err
		}
		remoteID, _, err := o.createGroup(ctx, ev.DN, ev.New)
		return Outcome{Transition: transition, RemoteID: remoteID}, err

	case core.TransitionDelete:
		return Outcome{Transition: transition}, o.deleteGroup(ctx, ev.DN, ev.Old)

	case core.TransitionModify:
		remoteID, err := o.remoteID(ctx, core.KindGroup, o.Groups.ObjectConfig, ev.DN, ev.New, ev.Old)
		if err != nil {
			return Outcome{Transition: transition}, err
		}
		if remoteID == "" {
			hasMembers, err := o.hasEligibleMembers(ctx, ev.DN)
			if err != nil || !hasMembers {
				return Outcome{Transition: transition}, err
			}
		}
		remoteID, err = o.reconcileGroup(ctx, ev.DN, ev.Old, ev.New, remoteID)
		return Outcome{Transition: transition, RemoteID: remoteID}, err

	default:
		return Outcome{Transition: transition}, nil
	}
}

func (o *Orchestrator) hasEligibleMembers(ctx context.Context, dn string) (bool, error) {
	members, err := o.Local.ListGroupMembers(ctx, dn)
	if err != nil {
		return false, fmt.Errorf("cannot list members of %s: %w", dn, err)
	}
	for _, m := range members {
		if m.IsEligible() {
			return true, nil
		}
	}
	return false, nil
}

// createGroup creates the remote group from the snapshot and enrolls all
// eligible members. It returns the remote ID and the document that was used
// for creation.
func (o *Orchestrator) createGroup(ctx context.Context, dn string, s core.Snapshot) (string, core.Document, error) {
	doc, err := o.renderGroup(ctx, s, nil)
	if err != nil {
		return "", nil, err
	}

	created, err := o.Remote.Create(ctx, core.ResourceGroups, doc)
	if core.IsKind(err, core.ErrConflict) {
		key := conflictingKey(err, doc, "email")
		logg.Info("group %s already exists in remote directory, updating instead", key)
		created, err = o.Remote.Patch(ctx, core.ResourceGroups, key, doc)
	}
	if err != nil {
		return "", nil, fmt.Errorf("while creating group %s: %w", dn, err)
	}
	remoteID, err := remoteIDOf(core.ResourceGroups, created)
	if err != nil {
		return "", nil, err
	}
	logg.Info("created group %s in remote directory with ID %s", dn, remoteID)

	err = o.storeRemoteRef(ctx, core.KindGroup, dn, remoteID, nil)
	if err != nil {
		return "", nil, err
	}

	members, err := o.Local.ListGroupMembers(ctx, dn)
	if err != nil {
		return "", nil, fmt.Errorf("cannot list members of %s: %w", dn, err)
	}
	for _, m := range members {
		if !m.IsEligible() {
			continue
		}
		err := o.addMember(ctx, dn, remoteID, m)
		if err != nil {
			return "", nil, err
		}
	}
	return remoteID, doc, nil
}

// renderGroup renders the group document. If props is nil, the whole
// template is rendered.
func (o *Orchestrator) renderGroup(ctx context.Context, s core.Snapshot, props resource.PropertySet) (core.Document, error) {
	var doc core.Document
	if props == nil {
		doc = o.Groups.Template.Materialize(s)
	} else {
		doc = o.Groups.Template.MaterializeProperties(s, props)
	}

	if props == nil || props["email"] {
		if _, ok := doc.GetString("email"); !ok {
			domain, err := o.Remote.PrimaryDomain(ctx)
			if err != nil {
				return nil, err
			}
			doc["email"] = core.String(FallbackGroupEmail(s.First("cn"), domain))
		}
	}
	return o.Groups.Validator.Normalize(doc)
}

func (o *Orchestrator) deleteGroup(ctx context.Context, dn string, old core.Snapshot) error {
	remoteID := old.First(o.Groups.RemoteIDAttribute)
	if remoteID == "" {
		logg.Debug("not deleting group %s from remote directory: it was never synced", dn)
		return nil
	}
	return o.deleteRemoteGroup(ctx, dn, remoteID)
}

func (o *Orchestrator) deleteRemoteGroup(ctx context.Context, dn, remoteID string) error {
	err := o.Remote.Delete(ctx, core.ResourceGroups, remoteID)
	switch {
	case core.IsKind(err, core.ErrNotFound):
		logg.Info("group %s (ID %s) was already deleted from remote directory", dn, remoteID)
		return nil
	case err != nil:
		return fmt.Errorf("while deleting group %s: %w", dn, err)
	default:
		logg.Info("deleted group %s (ID %s) from remote directory", dn, remoteID)
		return nil
	}
}

// deleteGroupIfEmpty deletes the remote group if it has no members left, and
// clears the remote ID of the local group. Returns whether the group is gone.
func (o *Orchestrator) deleteGroupIfEmpty(ctx context.Context, dn, remoteID string) (bool, error) {
	members, err := o.Remote.ListMembers(ctx, remoteID)
	switch {
	case core.IsKind(err, core.ErrNotFound):
		logg.Info("group %s (ID %s) does not exist in remote directory anymore", dn, remoteID)
	case err != nil:
		return false, fmt.Errorf("cannot list remote members of group %s: %w", dn, err)
	case len(members) > 0:
		return false, nil
	default:
		logg.Info("group %s has no members in remote directory anymore", dn)
		err = o.deleteRemoteGroup(ctx, dn, remoteID)
		if err != nil {
			return false, err
		}
	}

	err = o.Local.SetRemoteRef(ctx, core.KindGroup, dn, "")
	if err != nil && !core.IsKind(err, core.ErrNotFound) {
		return true, fmt.Errorf("cannot clear remote ID of %s: %w", dn, err)
	}
	return true, nil
}
