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

const placeholderLength = 12

// Properties that the remote directory requires on every user. These are
// never cleared when their source attributes disappear.
var mandatoryUserProperties = map[string]bool{
	"name":         true,
	"primaryEmail": true,
}

func (o *Orchestrator) handleUser(ctx context.Context, ev core.Event) (Outcome, error) {
	transition := core.Classify(ev.Old, ev.New, o.Users.EnabledAttribute)
	logg.Debug("classified event for user %s as %s", ev.DN, transition)

	var (
		remoteID string
		err      error
	)
	switch transition {
	case core.TransitionCreate:
		remoteID, err = o.createUser(ctx, ev.DN, ev.New)
	case core.TransitionDelete:
		err = o.deleteUser(ctx, ev.DN, ev.Old)
	case core.TransitionDeactivate:
		err = o.deactivateUser(ctx, ev.DN, ev.Old, ev.New)
	case core.TransitionModify:
		remoteID, err = o.modifyUser(ctx, ev.DN, ev.Old, ev.New)
	}
	return Outcome{Transition: transition, RemoteID: remoteID}, err
}

func (o *Orchestrator) createUser(ctx context.Context, dn string, s core.Snapshot) (string, error) {
	doc := o.Users.Template.Materialize(s)
	err := o.fillMandatoryUserFields(ctx, doc, s)
	if err != nil {
		return "", err
	}
	appendExternalIDs(doc, dn, s)
	doc, err = o.Users.Validator.Normalize(doc)
	if err != nil {
		return "", err
	}

	created, err := o.Remote.Create(ctx, core.ResourceUsers, doc)
	if core.IsKind(err, core.ErrConflict) {
		//the user exists already (e.g. from an earlier sync that was not
		//recorded locally) -> update it instead, but keep its password
		key := conflictingKey(err, doc, "primaryEmail")
		logg.Info("user %s already exists in remote directory, updating instead", key)
		delete(doc, "password")
		created, err = o.Remote.Patch(ctx, core.ResourceUsers, key, doc)
	}
	if err != nil {
		return "", fmt.Errorf("while creating user %s: %w", dn, err)
	}

	remoteID, err := remoteIDOf(core.ResourceUsers, created)
	if err != nil {
		return "", err
	}
	logg.Info("created user %s in remote directory with ID %s", dn, remoteID)
	return remoteID, o.storeRemoteRef(ctx, core.KindUser, dn, remoteID, created)
}

// fillMandatoryUserFields fills the fields that the remote directory requires
// for new users, using fallbacks for values that the template could not
// provide.
func (o *Orchestrator) fillMandatoryUserFields(ctx context.Context, doc core.Document, s core.Snapshot) error {
	fallback := func(attr string) core.String {
		if value := s.First(attr); value != "" && !o.Users.Template.IsNeverSynced(attr) {
			return core.String(value)
		}
		return core.String(core.RandomASCIIString(placeholderLength))
	}

	name, _ := doc["name"].(core.Mapping)
	if name == nil {
		name = make(core.Mapping)
	}
	if resource.IsVacant(name["givenName"]) {
		name["givenName"] = fallback("givenName")
	}
	if resource.IsVacant(name["familyName"]) {
		name["familyName"] = fallback("sn")
	}
	doc["name"] = name

	if _, ok := doc.GetString("primaryEmail"); !ok {
		email := s.First("mailPrimaryAddress")
		if email == "" || o.Users.Template.IsNeverSynced("mailPrimaryAddress") {
			domain, err := o.Remote.PrimaryDomain(ctx)
			if err != nil {
				return err
			}
			email = core.RandomASCIIString(placeholderLength) + "@" + domain
		}
		doc["primaryEmail"] = core.String(email)
	}

	doc["password"] = core.String(core.GeneratePassword(core.MinPasswordLength))
	return nil
}

// appendExternalIDs adds the identifiers that link the remote user back to
// the local entry.
func appendExternalIDs(doc core.Document, dn string, s core.Snapshot) {
	ids, _ := doc["externalIds"].(core.Sequence)
	if uuid := s.First("entryUUID"); uuid != "" {
		ids = append(ids, externalID("entryUUID", uuid))
	}
	ids = append(ids, externalID("entryDN", dn))
	doc["externalIds"] = ids
}

func externalID(customType, value string) core.Mapping {
	return core.Mapping{
		"customType": core.String(customType),
		"type":       core.String("custom"),
		"value":      core.String(value),
	}
}

func (o *Orchestrator) deleteUser(ctx context.Context, dn string, old core.Snapshot) error {
	remoteID := old.First(o.Users.RemoteIDAttribute)
	if remoteID == "" {
		logg.Info("not deleting user %s from remote directory: it was never synced", dn)
		return nil
	}
	return o.deleteRemoteUser(ctx, dn, remoteID)
}

func (o *Orchestrator) deleteRemoteUser(ctx context.Context, dn, remoteID string) error {
	err := o.Remote.Delete(ctx, core.ResourceUsers, remoteID)
	switch {
	case core.IsKind(err, core.ErrNotFound):
		logg.Info("user %s (ID %s) was already deleted from remote directory", dn, remoteID)
		return nil
	case err != nil:
		return fmt.Errorf("while deleting user %s: %w", dn, err)
	default:
		logg.Info("deleted user %s (ID %s) from remote directory", dn, remoteID)
		return nil
	}
}

func (o *Orchestrator) deactivateUser(ctx context.Context, dn string, old, new core.Snapshot) error {
	remoteID, err := o.remoteID(ctx, core.KindUser, o.Users.ObjectConfig, dn, new, old)
	if err != nil {
		return err
	}
	if remoteID == "" {
		logg.Info("not deleting deactivated user %s from remote directory: it was never synced", dn)
	} else {
		err = o.deleteRemoteUser(ctx, dn, remoteID)
		if err != nil {
			return err
		}
		//the cached data is overwritten instead of removed since the attribute
		//cannot be deleted from the local directory
		err = o.Local.SetRemoteRef(ctx, core.KindUser, dn, "")
		if err == nil {
			err = o.Local.SetRemoteData(ctx, core.KindUser, dn, nil)
		}
		if err != nil {
			return fmt.Errorf("cannot clear remote ID of %s: %w", dn, err)
		}
	}

	if !o.Groups.Enabled {
		return nil
	}
	groups, err := o.Local.GroupsOfMember(ctx, dn)
	if err != nil {
		return fmt.Errorf("cannot list groups of %s: %w", dn, err)
	}
	for _, group := range groups {
		if !group.IsSynced() {
			continue
		}
		_, err := o.deleteGroupIfEmpty(ctx, group.LocalID, group.RemoteID)
		if err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) modifyUser(ctx context.Context, dn string, old, new core.Snapshot) (string, error) {
	changed := core.DiffAttributes(o.WatchedUserAttributes(), old, new)
	props := o.Users.Mapping.AffectedProperties(changed)
	dnChanged := old.First("entryDN") != new.First("entryDN")
	if dnChanged {
		props["externalIds"] = true
	}
	if len(props) == 0 {
		logg.Debug("no relevant changes on user %s", dn)
		return o.remoteID(ctx, core.KindUser, o.Users.ObjectConfig, dn, new, old)
	}

	doc := o.Users.Template.MaterializeProperties(new, props)
	if props["externalIds"] {
		appendExternalIDs(doc, dn, new)
	}
	doc, err := o.Users.Validator.Normalize(doc)
	if err != nil {
		return "", err
	}
	//properties whose values disappeared entirely are cleared explicitly,
	//otherwise the remote directory would keep the old value
	for prop := range props {
		if _, exists := doc[prop]; !exists && !mandatoryUserProperties[prop] && !o.Users.Template.IsNeverSynced(prop) {
			doc[prop] = core.Null{}
		}
	}

	remoteID, err := o.findRemoteUser(ctx, dn, old, new)
	if err != nil {
		return "", err
	}
	if remoteID == "" {
		logg.Error("cannot update user %s: no counterpart found in remote directory", dn)
		return "", nil
	}

	patched, err := o.Remote.Patch(ctx, core.ResourceUsers, remoteID, doc)
	if core.IsKind(err, core.ErrNotFound) {
		logg.Info("cannot update user %s: ID %s does not exist in remote directory", dn, remoteID)
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("while updating user %s: %w", dn, err)
	}
	logg.Info("updated properties %v of user %s in remote directory", props.Sorted(), dn)

	if id, ok := patched.GetString("id"); ok && id != "" {
		remoteID = id
	}
	return remoteID, o.storeRemoteRef(ctx, core.KindUser, dn, remoteID, patched)
}

// findRemoteUser recovers the remote ID of a user if necessary: from the
// snapshots, from the LocalStore by DN and by entryUUID, and finally by
// searching the remote directory for the entryUUID in the external IDs.
func (o *Orchestrator) findRemoteUser(ctx context.Context, dn string, old, new core.Snapshot) (string, error) {
	remoteID, err := o.remoteID(ctx, core.KindUser, o.Users.ObjectConfig, dn, new, old)
	if err != nil || remoteID != "" {
		return remoteID, err
	}

	uuid := new.First("entryUUID")
	if uuid == "" {
		return "", nil
	}
	ref, err := o.Local.FindByExternalID(ctx, core.KindUser, "entryUUID", uuid)
	switch {
	case err == nil && ref.IsSynced():
		return ref.RemoteID, nil
	case err != nil && !core.IsKind(err, core.ErrNotFound):
		return "", err
	}

	doc, err := core.FirstRemote(ctx, o.Remote, core.ResourceUsers, "externalId="+uuid)
	if err != nil || doc == nil {
		return "", err
	}
	logg.Info("recovered remote ID of user %s by searching for its entryUUID", dn)
	return remoteIDOf(core.ResourceUsers, doc)
}
