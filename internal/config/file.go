/*******************************************************************************
* Copyright 2023 Stefan Majewsky <majewsky@gmx.net>
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package config

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/sapcc/go-bits/errext"
	"gopkg.in/yaml.v3"

	"github.com/majewsky/dirsync/internal/grammars"
	"github.com/majewsky/dirsync/internal/ldap"
	"github.com/majewsky/dirsync/internal/resource"
	"github.com/majewsky/dirsync/internal/syncer"
)

// File is the structure of the mapping file.
type File struct {
	LDAP   LDAPSection  `yaml:"ldap"`
	Users  UserSection  `yaml:"users"`
	Groups GroupSection `yaml:"groups"`
}

// LDAPSection describes the LDAP schema that the sync works with.
type LDAPSection struct {
	RemoteIDAttribute   string   `yaml:"remote_id_attribute"`
	RemoteDataAttribute string   `yaml:"remote_data_attribute"`
	EnabledAttribute    string   `yaml:"enabled_attribute"`
	MemberAttribute     string   `yaml:"member_attribute"`
	UserObjectClasses   []string `yaml:"user_object_classes"`
	GroupObjectClasses  []string `yaml:"group_object_classes"`
}

// UserSection configures which user attributes are synced, and how.
type UserSection struct {
	Never     []string            `yaml:"never"`
	Anonymize []string            `yaml:"anonymize"`
	Mapping   map[string]SpecList `yaml:"mapping"`
}

// GroupSection configures the sync of groups.
type GroupSection struct {
	Sync bool `yaml:"sync"`
}

// SpecList is a list of mapping specs. In YAML, it can be given as a single
// string or as a list of strings.
type SpecList []string

// UnmarshalYAML implements the yaml.Unmarshaler interface.
func (l *SpecList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*l = SpecList{node.Value}
		return nil
	case yaml.SequenceNode:
		var specs []string
		err := node.Decode(&specs)
		*l = specs
		return err
	default:
		return fmt.Errorf("line %d: expected a mapping spec or a list of mapping specs", node.Line)
	}
}

func defaultFile() File {
	return File{
		LDAP: LDAPSection{
			RemoteIDAttribute:   "univentionGoogleAppsObjectID",
			RemoteDataAttribute: "univentionGoogleAppsData",
			EnabledAttribute:    "univentionGoogleAppsEnabled",
			MemberAttribute:     "uniqueMember",
			UserObjectClasses:   []string{"person"},
			GroupObjectClasses:  []string{"posixGroup"},
		},
		Groups: GroupSection{Sync: true},
	}
}

// LoadFile reads the mapping file. Settings missing from the file are filled
// with defaults.
func LoadFile(path string) (File, error) {
	f := defaultFile()
	r, err := os.Open(path)
	if err != nil {
		return File{}, err
	}
	defer r.Close()

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	err = dec.Decode(&f)
	if err != nil {
		return File{}, fmt.Errorf("cannot parse %s: %w", path, err)
	}
	return f, nil
}

// Config is the compiled configuration of the sync engine.
type Config struct {
	Users  syncer.UserConfig
	Groups syncer.GroupConfig
	Store  ldap.StoreOptions
}

// Compile validates the mapping file and builds the configuration of the
// sync engine from it. The environment can override the group sync toggle.
func (f File) Compile(env Environment) (Config, errext.ErrorSet) {
	errs := f.validate()

	properties := make(map[string][]string, len(f.Users.Mapping))
	for prop, specs := range f.Users.Mapping {
		properties[prop] = specs
	}
	userTemplate, userMapping, userErrs := resource.MappingConfig{
		Schema:     resource.UserSchema,
		Base:       map[string]string{"primaryEmail": "%mailPrimaryAddress"},
		Properties: properties,
		Never:      f.Users.Never,
		Anonymize:  f.Users.Anonymize,
	}.Compile()
	errs = append(errs, userErrs...)

	groupTemplate, groupMapping, groupErrs := resource.MappingConfig{
		Schema: resource.GroupSchema,
		Base: map[string]string{
			"name":        "%cn",
			"description": "%description",
			"email":       "%mailPrimaryAddress",
		},
	}.Compile()
	errs = append(errs, groupErrs...)

	syncGroups := f.Groups.Sync
	if value := env["DIRSYNC_GROUPS_SYNC"]; value != "" {
		syncGroups = value == "true"
	}

	cfg := Config{
		Users: syncer.UserConfig{
			ObjectConfig: syncer.ObjectConfig{
				Template:          userTemplate,
				Mapping:           userMapping,
				Validator:         resource.NewValidator(resource.UserSchema, f.Users.Never),
				RemoteIDAttribute: f.LDAP.RemoteIDAttribute,
			},
			EnabledAttribute: f.LDAP.EnabledAttribute,
		},
		Groups: syncer.GroupConfig{
			ObjectConfig: syncer.ObjectConfig{
				Template:          groupTemplate,
				Mapping:           groupMapping,
				Validator:         resource.NewValidator(resource.GroupSchema, nil),
				RemoteIDAttribute: f.LDAP.RemoteIDAttribute,
			},
			Enabled:         syncGroups,
			MemberAttribute: f.LDAP.MemberAttribute,
		},
		Store: ldap.StoreOptions{
			RemoteIDAttribute:   f.LDAP.RemoteIDAttribute,
			RemoteDataAttribute: f.LDAP.RemoteDataAttribute,
			EnabledAttribute:    f.LDAP.EnabledAttribute,
			MemberAttribute:     f.LDAP.MemberAttribute,
			UserObjectClasses:   f.LDAP.UserObjectClasses,
			GroupObjectClasses:  f.LDAP.GroupObjectClasses,
		},
	}
	return cfg, errs
}

func (f File) validate() (errs errext.ErrorSet) {
	checkName := func(field, value string) {
		if !grammars.IsAttributeName(value) {
			errs.Addf("invalid value for %s: %q is not an LDAP attribute name", field, value)
		}
	}
	checkName("ldap.remote_id_attribute", f.LDAP.RemoteIDAttribute)
	checkName("ldap.remote_data_attribute", f.LDAP.RemoteDataAttribute)
	checkName("ldap.enabled_attribute", f.LDAP.EnabledAttribute)
	checkName("ldap.member_attribute", f.LDAP.MemberAttribute)

	checkClasses := func(field string, values []string) {
		if len(values) == 0 {
			errs.Addf("missing value for %s", field)
		}
		for _, value := range values {
			checkName(field, value)
		}
	}
	checkClasses("ldap.user_object_classes", f.LDAP.UserObjectClasses)
	checkClasses("ldap.group_object_classes", f.LDAP.GroupObjectClasses)
	for _, class := range f.LDAP.UserObjectClasses {
		if slices.ContainsFunc(f.LDAP.GroupObjectClasses, func(c string) bool { return strings.EqualFold(c, class) }) {
			errs.Addf("object class %s cannot be used for both users and groups", class)
		}
	}

	for _, attr := range f.Users.Never {
		checkName("users.never", attr)
	}
	for _, attr := range f.Users.Anonymize {
		checkName("users.anonymize", attr)
	}
	return errs
}
