/*******************************************************************************
* Copyright 2023 Stefan Majewsky <majewsky@gmx.net>
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package gdirectory

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/majewsky/dirsync/internal/core"
)

// fromDocument fills an API struct from a document. Fields with an explicit
// null value are sent as null (i.e. cleared on the remote side), and all
// other fields in the document are sent even if they carry zero values.
func fromDocument(doc core.Document, target any, forceSend, null *[]string) error {
	payload := make(core.Mapping, len(doc))
	for _, key := range doc.Keys() {
		value := doc[key]
		if _, isNull := value.(core.Null); isNull {
			*null = append(*null, goFieldName(key))
			continue
		}
		payload[key] = value
		*forceSend = append(*forceSend, goFieldName(key))
	}

	buf, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	err = json.Unmarshal(buf, target)
	if err != nil {
		return fmt.Errorf("document does not fit the API schema: %w", err)
	}
	return nil
}

// toDocument converts an API struct back into a document.
func toDocument(obj any) (core.Document, error) {
	buf, err := json.Marshal(obj)
	if err != nil {
		return nil, err
	}
	return core.DocumentFromJSON(buf)
}

// goFieldName converts the JSON name of an API field into the name of the
// corresponding field in the generated structs (e.g. "primaryEmail" ->
// "PrimaryEmail").
func goFieldName(jsonName string) string {
	r, size := utf8.DecodeRuneInString(jsonName)
	if r == utf8.RuneError {
		return jsonName
	}
	return string(unicode.ToUpper(r)) + jsonName[size:]
}

// emailField returns the name of the property holding the primary email
// address of objects of this type.
func emailField(rt core.ResourceType) string {
	if rt == core.ResourceUsers {
		return "primaryEmail"
	}
	return "email"
}

// fixEmailAddress makes an email address acceptable to the remote directory:
// spaces in the local part become underscores, an empty local part is
// replaced by a random one, and domains that are not registered with the
// remote directory are replaced by the primary domain.
func fixEmailAddress(address string, domains []string, primaryDomain string) string {
	local, domain, _ := strings.Cut(address, "@")
	local = strings.ReplaceAll(strings.TrimSpace(local), " ", "_")
	if local == "" {
		local = core.RandomASCIIString(16)
	}
	known := false
	for _, d := range domains {
		if strings.EqualFold(d, domain) {
			known = true
			break
		}
	}
	if !known {
		domain = primaryDomain
	}
	return local + "@" + domain
}
