/*******************************************************************************
* Copyright 2023 Stefan Majewsky <majewsky@gmx.net>
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package core

// Transition is the lifecycle step that a change event represents for the
// remote copy of an entry.
type Transition string

const (
	TransitionNoOp         Transition = "no-op"
	TransitionCreate       Transition = "create"
	TransitionDelete       Transition = "delete"
	TransitionModify       Transition = "modify"
	TransitionDeactivate   Transition = "deactivate"
	TransitionReplayMarker Transition = "replay-marker"
	//Classify never returns this. Reactivation is reported as
	//TransitionCreate since both need the full resource document.
	TransitionReactivate Transition = "reactivate"
)

// Classify determines the Transition for a pair of snapshots.
//
// If enabledAttr is not empty, it names a flag attribute that gates whether
// the entry is synced at all. Otherwise only the structural presence of the
// snapshots is considered (this is how groups are classified).
func Classify(old, new Snapshot, enabledAttr string) Transition {
	if enabledAttr == "" {
		return classifyStructural(old, new)
	}

	oldEnabled := old != nil && old.IsEnabled(enabledAttr)
	newEnabled := new != nil && new.IsEnabled(enabledAttr)
	switch {
	case new != nil && newEnabled && !oldEnabled:
		//covers both creation and reactivation of a previously disabled entry
		return TransitionCreate
	case old != nil && new == nil:
		return TransitionDelete
	case old != nil && new != nil && !newEnabled:
		//also when the old state was disabled: an earlier deactivation may
		//not have completed
		return TransitionDeactivate
	case oldEnabled && newEnabled:
		return TransitionModify
	default:
		return TransitionNoOp
	}
}

func classifyStructural(old, new Snapshot) Transition {
	switch {
	case old == nil && new != nil:
		return TransitionCreate
	case old != nil && new == nil:
		return TransitionDelete
	case old != nil && new != nil:
		return TransitionModify
	default:
		return TransitionNoOp
	}
}
