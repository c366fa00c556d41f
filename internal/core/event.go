/*******************************************************************************
* Copyright 2023 Stefan Majewsky <majewsky@gmx.net>
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package core

import "fmt"

// EntryKind distinguishes the two kinds of directory objects that are synced.
type EntryKind string

const (
	KindUser  EntryKind = "user"
	KindGroup EntryKind = "group"
)

// ResourceType returns the name of the remote collection holding objects of
// this kind.
func (k EntryKind) ResourceType() ResourceType {
	switch k {
	case KindUser:
		return ResourceUsers
	case KindGroup:
		return ResourceGroups
	default:
		panic(fmt.Sprintf("unknown EntryKind: %q", string(k)))
	}
}

// Command is the kind of change that the change log reported.
type Command string

const (
	CommandAdd    Command = "add"
	CommandModify Command = "modify"
	CommandDelete Command = "delete"
	//CommandRenameSave is the first half of a rename. The old snapshot must be
	//stashed until the matching CommandRenameReplay arrives.
	CommandRenameSave Command = "rename-save"
	//CommandRenameReplay is the second half of a rename.
	CommandRenameReplay Command = "rename-replay"
)

// IsValid returns whether this is one of the known commands.
func (c Command) IsValid() bool {
	switch c {
	case CommandAdd, CommandModify, CommandDelete, CommandRenameSave, CommandRenameReplay:
		return true
	default:
		return false
	}
}

// Event is a single change notification from the change log.
type Event struct {
	Kind    EntryKind `json:"kind"`
	DN      string    `json:"dn"`
	Command Command   `json:"command"`
	Old     Snapshot  `json:"old,omitempty"`
	New     Snapshot  `json:"new,omitempty"`
}

// Validate checks the structural integrity of an event.
func (e Event) Validate() error {
	if e.Kind != KindUser && e.Kind != KindGroup {
		return fmt.Errorf("unknown entry kind: %q", string(e.Kind))
	}
	if e.DN == "" {
		return fmt.Errorf("missing DN in %s event", e.Kind)
	}
	if !e.Command.IsValid() {
		return fmt.Errorf("unknown command %q in event for %s", string(e.Command), e.DN)
	}
	return nil
}

// StashKey returns the key under which the old snapshot of this entry is
// kept between the two halves of a rename. The entryUUID survives renames,
// so it is preferred over the DN.
func (e Event) StashKey() string {
	for _, s := range []Snapshot{e.Old, e.New} {
		if uuid := s.First("entryUUID"); uuid != "" {
			return string(e.Kind) + "-" + uuid
		}
	}
	return string(e.Kind)
}
