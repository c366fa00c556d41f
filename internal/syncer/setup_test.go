/*******************************************************************************
* Copyright 2023 Stefan Majewsky <majewsky@gmx.net>
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package syncer

import (
	"context"
	"testing"

	"github.com/majewsky/dirsync/internal/core"
	"github.com/majewsky/dirsync/internal/resource"
	"github.com/majewsky/dirsync/internal/test"
)

const (
	enabledAttr  = "univentionGoogleAppsEnabled"
	remoteIDAttr = "univentionGoogleAppsObjectID"
	janeDN       = "uid=jane,cn=users,dc=example,dc=org"
	johnDN       = "uid=john,cn=users,dc=example,dc=org"
	staffDN      = "cn=staff,cn=groups,dc=example,dc=org"
)

type testSetup struct {
	Orchestrator *Orchestrator
	Remote       *test.RemoteDirectoryDouble
	Local        *test.LocalStoreDouble
	Stash        test.StashDouble
}

func setupOrchestrator(t *testing.T) testSetup {
	t.Helper()

	userTemplate, userMapping, errs := resource.MappingConfig{
		Schema: resource.UserSchema,
		Base:   map[string]string{"primaryEmail": "%mailPrimaryAddress"},
		Properties: map[string][]string{
			"name":   {"familyName=%sn,givenName=%givenName"},
			"phones": {"type=work,value=%telephoneNumber", "type=mobile,value=%mobile"},
			"notes":  {"value=%description"},
		},
		Never: []string{"userPassword"},
	}.Compile()
	test.ExpectNoErrors(t, errs)

	groupTemplate, groupMapping, errs := resource.MappingConfig{
		Schema: resource.GroupSchema,
		Base: map[string]string{
			"name":        "%cn",
			"description": "%description",
			"email":       "%mailPrimaryAddress",
		},
	}.Compile()
	test.ExpectNoErrors(t, errs)

	s := testSetup{
		Remote: test.NewRemoteDirectoryDouble(),
		Local:  test.NewLocalStoreDouble(),
		Stash:  make(test.StashDouble),
	}
	s.Orchestrator = &Orchestrator{
		Remote: s.Remote,
		Local:  s.Local,
		Stash:  s.Stash,
		Users: UserConfig{
			ObjectConfig: ObjectConfig{
				Template:          userTemplate,
				Mapping:           userMapping,
				Validator:         resource.NewValidator(resource.UserSchema, []string{"userPassword"}),
				RemoteIDAttribute: remoteIDAttr,
			},
			EnabledAttribute: enabledAttr,
		},
		Groups: GroupConfig{
			ObjectConfig: ObjectConfig{
				Template:          groupTemplate,
				Mapping:           groupMapping,
				Validator:         resource.NewValidator(resource.GroupSchema, nil),
				RemoteIDAttribute: remoteIDAttr,
			},
			Enabled:         true,
			MemberAttribute: "uniqueMember",
		},
	}
	return s
}

func janeSnapshot(enabled string) core.Snapshot {
	return core.Snapshot{
		"objectClass":        {"person", "univentionGoogleApps"},
		"uid":                {"jane"},
		"givenName":          {"Jane"},
		"sn":                 {"Doe"},
		"mailPrimaryAddress": {"jane@example.org"},
		"entryUUID":          {"uuid-jane"},
		"entryDN":            {janeDN},
		"userPassword":       {"secret"},
		enabledAttr:          {enabled},
	}
}

// addSyncedUser creates a user in both directories, like a successful
// earlier sync would have.
func (s testSetup) addSyncedUser(dn, uuid, email string) string {
	remoteID := s.Remote.AddObject(core.ResourceUsers, core.Document{
		"primaryEmail": core.String(email),
		"externalIds": core.Sequence{core.Mapping{
			"customType": core.String("entryDN"), "type": core.String("custom"), "value": core.String(dn),
		}},
	})
	s.Local.Entries[dn] = &test.LocalEntry{Kind: core.KindUser, UUID: uuid, Enabled: true, RemoteID: remoteID}
	return remoteID
}

func (s testSetup) handle(t *testing.T, ev core.Event) Outcome {
	t.Helper()
	outcome, err := s.Orchestrator.Handle(context.Background(), ev)
	test.ExpectNoError(t, err)
	return outcome
}
