/*******************************************************************************
* Copyright 2023 Stefan Majewsky <majewsky@gmx.net>
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package resource

// PropertyType describes the shape of a top-level resource property.
type PropertyType int

const (
	// ScalarProperty holds a single string, number or boolean.
	ScalarProperty PropertyType = iota
	// BooleanProperty holds a boolean.
	BooleanProperty
	// MappingProperty holds a single substructure.
	MappingProperty
	// SequenceProperty holds a list of substructures or scalars.
	SequenceProperty
)

// Schema describes the resource type of one remote collection.
type Schema struct {
	//All known properties. Mapping configuration for other properties is
	//rejected.
	Types map[string]PropertyType
	//For properties holding substructures: the fields that each substructure
	//must have to be accepted by the remote directory.
	Required map[string][]string
	//Properties that may not be set through the mapping configuration because
	//they are managed by the sync engine or read-only on the remote side.
	Blacklist map[string]bool
}

// IsList returns whether the property holds a list.
func (s Schema) IsList(prop string) bool {
	return s.Types[prop] == SequenceProperty
}

// UserSchema describes user resources in the Google Admin Directory.
var UserSchema = Schema{
	Types: map[string]PropertyType{
		"addresses":                  SequenceProperty,
		"aliases":                    SequenceProperty,
		"changePasswordAtNextLogin":  BooleanProperty,
		"customSchemas":              MappingProperty,
		"emails":                     SequenceProperty,
		"externalIds":                SequenceProperty,
		"hashFunction":               ScalarProperty,
		"includeInGlobalAddressList": BooleanProperty,
		"ims":                        SequenceProperty,
		"ipWhitelisted":              BooleanProperty,
		"keywords":                   SequenceProperty,
		"languages":                  SequenceProperty,
		"locations":                  SequenceProperty,
		"name":                       MappingProperty,
		"notes":                      MappingProperty,
		"orgUnitPath":                ScalarProperty,
		"organizations":              SequenceProperty,
		"password":                   ScalarProperty,
		"phones":                     SequenceProperty,
		"posixAccounts":              SequenceProperty,
		"primaryEmail":               ScalarProperty,
		"relations":                  SequenceProperty,
		"sshPublicKeys":              SequenceProperty,
		"suspended":                  BooleanProperty,
		"suspensionReason":           ScalarProperty,
		"websites":                   SequenceProperty,
	},
	Required: map[string][]string{
		"emails":        {"address"},
		"externalIds":   {"value"},
		"ims":           {"im"},
		"name":          {"familyName", "givenName"},
		"notes":         {"value"},
		"organizations": {"name"},
		"phones":        {"value"},
		"relations":     {"value"},
		"websites":      {"value"},
	},
	Blacklist: toSet([]string{
		"univentionGoogleAppsObjectID", "univentionGoogleAppsData",
		"kind", "id", "etag", "isAdmin", "isDelegatedAdmin", "lastLoginTime",
		"creationTime", "deletionTime", "agreedToTerms", "password",
		"hashFunction", "changePasswordAtNextLogin", "ipWhitelisted",
		"nonEditableAliases", "customerId", "isMailboxSetup",
		"thumbnailPhotoEtag", "primaryEmail",
	}),
}

// GroupSchema describes group resources in the Google Admin Directory.
var GroupSchema = Schema{
	Types: map[string]PropertyType{
		"description": ScalarProperty,
		"email":       ScalarProperty,
		"name":        ScalarProperty,
	},
	Required:  map[string][]string{},
	Blacklist: toSet([]string{"kind", "id", "etag", "adminCreated", "directMembersCount", "nonEditableAliases"}),
}
