/*******************************************************************************
* Copyright 2023 Stefan Majewsky <majewsky@gmx.net>
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package core

// MembershipDelta is the difference between two member lists.
type MembershipDelta struct {
	Added   []string
	Removed []string
}

// IsEmpty returns whether the member list did not change.
func (d MembershipDelta) IsEmpty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0
}

// ComputeMembershipDelta diffs two member lists. Duplicates are ignored and
// the results are in the order of first appearance.
func ComputeMembershipDelta(old, new []string) MembershipDelta {
	isOld := make(map[string]bool, len(old))
	for _, id := range old {
		isOld[id] = true
	}
	isNew := make(map[string]bool, len(new))
	for _, id := range new {
		isNew[id] = true
	}

	var delta MembershipDelta
	seen := make(map[string]bool)
	for _, id := range new {
		if !isOld[id] && !seen[id] {
			delta.Added = append(delta.Added, id)
			seen[id] = true
		}
	}
	for _, id := range old {
		if !isNew[id] && !seen[id] {
			delta.Removed = append(delta.Removed, id)
			seen[id] = true
		}
	}
	return delta
}
