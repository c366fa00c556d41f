/*******************************************************************************
* Copyright 2023 Stefan Majewsky <majewsky@gmx.net>
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package syncer

import (
	"context"
	"fmt"
	"slices"

	"github.com/sapcc/go-bits/logg"

	"github.com/majewsky/dirsync/internal/core"
)

// reconcileGroup brings the remote group in line with a changed local group.
// remoteID is empty if the group does not exist remotely yet. Returns the
// remote ID of the group afterwards, which is empty if the group was deleted
// because it became empty.
func (o *Orchestrator) reconcileGroup(ctx context.Context, dn string, old, new core.Snapshot, remoteID string) (string, error) {
	initialRemoteID := remoteID
	memberAttr := o.Groups.MemberAttribute
	delta := core.ComputeMembershipDelta(old[memberAttr], new[memberAttr])

	//added members
	var createdDoc core.Document
	for _, memberDN := range delta.Added {
		m, err := o.Local.ResolveMember(ctx, memberDN)
		if err != nil {
			return remoteID, fmt.Errorf("cannot resolve new member %s of group %s: %w", memberDN, dn, err)
		}
		if m.Kind == core.KindGroup {
			logg.Info("not adding %s to group %s in remote directory: nested groups are not synced", memberDN, dn)
			continue
		}
		if !m.IsEligible() {
			logg.Debug("not adding %s to group %s in remote directory: member is not synced", memberDN, dn)
			continue
		}

		if remoteID == "" {
			//creation enrolls all eligible members at once
			remoteID, createdDoc, err = o.createGroup(ctx, dn, new)
			if err != nil {
				return "", err
			}
			break
		}
		err = o.addMember(ctx, dn, remoteID, m)
		if err != nil {
			return remoteID, err
		}
	}

	//removed members
	if remoteID != "" {
		for _, memberDN := range delta.Removed {
			memberID, err := o.resolveRemovedMember(ctx, memberDN)
			if err != nil {
				return remoteID, err
			}
			if memberID == "" {
				logg.Info("not removing %s from group %s in remote directory: member is not synced", memberDN, dn)
				continue
			}
			err = o.Remote.RemoveMember(ctx, remoteID, memberID)
			switch {
			case core.IsKind(err, core.ErrNotFound):
				logg.Info("%s was not a member of group %s in remote directory", memberDN, dn)
			case err != nil:
				return remoteID, fmt.Errorf("cannot remove %s from group %s: %w", memberDN, dn, err)
			default:
				logg.Info("removed %s from group %s in remote directory", memberDN, dn)
			}
		}
	}

	//a group without members is not kept in the remote directory
	if remoteID != "" {
		deleted, err := o.deleteGroupIfEmpty(ctx, dn, remoteID)
		if err != nil {
			return remoteID, err
		}
		if deleted {
			return "", nil
		}
	}

	//other properties
	if remoteID != "" {
		err := o.patchGroup(ctx, dn, old, new, remoteID, createdDoc)
		if err != nil {
			return remoteID, err
		}
	}

	if remoteID != initialRemoteID && createdDoc == nil {
		return remoteID, o.storeRemoteRef(ctx, core.KindGroup, dn, remoteID, nil)
	}
	return remoteID, nil
}

func (o *Orchestrator) addMember(ctx context.Context, groupDN, groupID string, m core.Member) error {
	_, err := o.Remote.AddMember(ctx, groupID, m.RemoteID, memberRole)
	switch {
	case core.IsKind(err, core.ErrConflict):
		logg.Info("%s is already a member of group %s in remote directory", m.LocalID, groupDN)
		return nil
	case err != nil:
		return fmt.Errorf("cannot add %s to group %s: %w", m.LocalID, groupDN, err)
	default:
		logg.Info("added %s to group %s in remote directory", m.LocalID, groupDN)
		return nil
	}
}

// resolveRemovedMember finds the remote ID of a former group member. The
// member may be gone from the LocalStore already, in which case the remote
// directory is searched for a user carrying the DN as external ID. Returns
// "" if the member cannot be found anywhere.
func (o *Orchestrator) resolveRemovedMember(ctx context.Context, memberDN string) (string, error) {
	m, err := o.Local.ResolveMember(ctx, memberDN)
	switch {
	case err == nil && m.IsSynced():
		return m.RemoteID, nil
	case err == nil:
		//fall through to remote lookup
	case core.IsKind(err, core.ErrNotFound), core.IsKind(err, core.ErrClassificationAmbiguity):
		logg.Debug("cannot resolve former member %s locally: %s", memberDN, err.Error())
	default:
		return "", err
	}

	doc, err := core.FirstRemote(ctx, o.Remote, core.ResourceUsers, "externalId="+memberDN)
	if err != nil || doc == nil {
		return "", err
	}
	return remoteIDOf(core.ResourceUsers, doc)
}

// patchGroup updates the non-membership properties of the remote group.
// Properties that were just set during creation are skipped.
func (o *Orchestrator) patchGroup(ctx context.Context, dn string, old, new core.Snapshot, remoteID string, createdDoc core.Document) error {
	watched := slices.DeleteFunc(o.WatchedGroupAttributes(), func(attr string) bool {
		return attr == o.Groups.MemberAttribute
	})
	changed := core.DiffAttributes(watched, old, new)
	props := o.Groups.Mapping.AffectedProperties(changed)
	if len(props) == 0 {
		return nil
	}

	doc, err := o.renderGroup(ctx, new, props)
	if err != nil {
		return err
	}
	for prop := range props {
		if _, exists := doc[prop]; !exists && !mandatoryGroupProperties[prop] {
			doc[prop] = core.Null{}
		}
	}
	for key, value := range createdDoc {
		if current, exists := doc[key]; exists && core.ValuesAreEqual(current, value) {
			delete(doc, key)
		}
	}
	if len(doc) == 0 {
		return nil
	}

	_, err = o.Remote.Patch(ctx, core.ResourceGroups, remoteID, doc)
	switch {
	case core.IsKind(err, core.ErrNotFound):
		logg.Info("cannot update group %s: ID %s does not exist in remote directory", dn, remoteID)
		return nil
	case err != nil:
		return fmt.Errorf("while updating group %s: %w", dn, err)
	default:
		logg.Info("updated properties %v of group %s in remote directory", doc.Keys(), dn)
		return nil
	}
}
