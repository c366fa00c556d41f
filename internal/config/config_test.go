/*******************************************************************************
* Copyright 2023 Stefan Majewsky <majewsky@gmx.net>
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package config

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/sapcc/go-bits/assert"

	"github.com/majewsky/dirsync/internal/core"
	"github.com/majewsky/dirsync/internal/ldap"
	"github.com/majewsky/dirsync/internal/resource"
	"github.com/majewsky/dirsync/internal/test"
)

func TestCompileMappingFile(t *testing.T) {
	f, err := LoadFile("testdata/mapping.yaml")
	test.ExpectNoError(t, err)

	cfg, errs := f.Compile(Environment{})
	test.ExpectNoErrors(t, errs)

	assert.DeepEqual(t, "store options", cfg.Store, ldap.StoreOptions{
		RemoteIDAttribute:   "univentionGoogleAppsObjectID",
		RemoteDataAttribute: "univentionGoogleAppsData",
		EnabledAttribute:    "univentionGoogleAppsEnabled",
		MemberAttribute:     "uniqueMember",
		UserObjectClasses:   []string{"person", "univentionGoogleApps"},
		GroupObjectClasses:  []string{"posixGroup"},
	})
	assert.DeepEqual(t, "groups enabled", cfg.Groups.Enabled, false)
	assert.DeepEqual(t, "enabled attribute", cfg.Users.EnabledAttribute, "univentionGoogleAppsEnabled")

	//blacklisted properties are not mapped
	assert.DeepEqual(t, "user mapping", cfg.Users.Mapping, resource.PropertyMap{
		"givenName":          {"name"},
		"mailPrimaryAddress": {"primaryEmail"},
		"mobile":             {"phones"},
		"sn":                 {"name"},
		"telephoneNumber":    {"phones"},
		"uid":                {"externalIds"},
	})

	doc := cfg.Users.Template.Materialize(core.Snapshot{
		"mailPrimaryAddress": {"jane@example.org"},
		"sn":                 {"Doe"},
		"givenName":          {"Jane"},
		"mobile":             {"+49 170 1234567"},
		"userPassword":       {"{crypt}secret"},
	})
	assert.DeepEqual(t, "rendered document", doc, core.Document{
		"primaryEmail": core.String("jane@example.org"),
		"name":         core.Mapping{"familyName": core.String("Doe"), "givenName": core.String("Jane")},
		"phones": core.Sequence{
			core.Mapping{"type": core.String("work")},
			core.Mapping{"type": core.String("mobile"), "value": core.String("+49 170 1234567")},
		},
		"externalIds": core.Sequence{
			core.Mapping{"type": core.String("custom"), "customType": core.String("uid")},
		},
	})

	//the environment overrides the group sync toggle
	cfg, errs = f.Compile(Environment{"DIRSYNC_GROUPS_SYNC": "true"})
	test.ExpectNoErrors(t, errs)
	assert.DeepEqual(t, "groups enabled", cfg.Groups.Enabled, true)
}

func TestCompileInvalidMappingFile(t *testing.T) {
	f, err := LoadFile("testdata/invalid.yaml")
	test.ExpectNoError(t, err)

	_, errs := f.Compile(Environment{})
	var messages []string
	for _, err := range errs {
		messages = append(messages, err.Error())
	}
	assert.DeepEqual(t, "error count", len(messages), 3)
	expected := []string{
		`invalid value for ldap.remote_id_attribute: "google_id" is not an LDAP attribute name`,
		`object class person cannot be used for both users and groups`,
		`invalid mapping for name: `,
	}
	for idx, prefix := range expected {
		if idx < len(messages) && !strings.HasPrefix(messages[idx], prefix) {
			t.Errorf("expected error %d to start with %q, but got %q", idx, prefix, messages[idx])
		}
	}
}

func TestLoadFileRejectsUnknownKeys(t *testing.T) {
	path := t.TempDir() + "/mapping.yaml"
	test.ExpectNoError(t, os.WriteFile(path, []byte("users:\n  mappings: {}\n"), 0600))
	_, err := LoadFile(path)
	if err == nil {
		t.Error("expected LoadFile to reject unknown keys, but got no error")
	}
}

func TestReadEnvironment(t *testing.T) {
	t.Setenv("DIRSYNC_ENV_FILE", "testdata/dirsync.env")
	//already set variables win over the env file
	t.Setenv("DIRSYNC_API_LISTEN", "[::1]:8090")
	t.Setenv("DIRSYNC_RETRY_INTERVAL_SECS", "5")
	t.Setenv("DIRSYNC_GROUPS_SYNC", "")
	t.Setenv("DIRSYNC_JOURNAL_DSN", "")
	//the env file sets these, so they must be unset now and cleared again after the test
	for _, key := range []string{"DIRSYNC_LDAP_URL", "DIRSYNC_LDAP_BASE_DN", "DIRSYNC_LDAP_BIND_DN", "DIRSYNC_LDAP_BIND_PASSWORD", "DIRSYNC_GOOGLE_ADMIN_EMAIL"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	env, errs := ReadEnvironment()
	test.ExpectNoErrors(t, errs)
	assert.DeepEqual(t, "API listen", env["DIRSYNC_API_LISTEN"], "[::1]:8090")
	assert.DeepEqual(t, "base DN", env["DIRSYNC_LDAP_BASE_DN"], "dc=example,dc=org")
	assert.DeepEqual(t, "spool dir", env["DIRSYNC_SPOOL_DIR"], "/var/spool/dirsync")
	assert.DeepEqual(t, "retry interval", env.RetryInterval(), 5*time.Second)
	assert.DeepEqual(t, "debug", env.Bool("DIRSYNC_DEBUG"), false)
}

func TestReadEnvironmentReportsProblems(t *testing.T) {
	t.Setenv("DIRSYNC_ENV_FILE", "testdata/does-not-exist.env")
	t.Setenv("DIRSYNC_DEBUG", "yes")
	for _, key := range []string{"DIRSYNC_LDAP_URL", "DIRSYNC_LDAP_BASE_DN", "DIRSYNC_LDAP_BIND_DN", "DIRSYNC_LDAP_BIND_PASSWORD", "DIRSYNC_GOOGLE_ADMIN_EMAIL"} {
		t.Setenv(key, "")
	}

	_, errs := ReadEnvironment()
	joined := errs.Join("\n")
	for _, expected := range []string{
		"cannot load testdata/does-not-exist.env",
		"missing required environment variable: DIRSYNC_LDAP_URL",
		"missing required environment variable: DIRSYNC_GOOGLE_ADMIN_EMAIL",
		`malformed environment variable: DIRSYNC_DEBUG="yes"`,
	} {
		if !strings.Contains(joined, expected) {
			t.Errorf("expected error %q, but got:\n%s", expected, joined)
		}
	}
}
