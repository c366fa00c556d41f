/*******************************************************************************
* Copyright 2023 Stefan Majewsky <majewsky@gmx.net>
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package syncer

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/majewsky/dirsync/internal/core"
)

// FallbackGroupEmail builds an email address for a group that does not have
// one: the group name is folded to ASCII, spaces become underscores, and
// other characters that are not allowed in the local part are dropped.
func FallbackGroupEmail(name, domain string) string {
	folder := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(folder, name)
	if err != nil {
		folded = name
	}

	var b strings.Builder
	for _, r := range strings.ToLower(folded) {
		switch {
		case r == ' ':
			b.WriteRune('_')
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	local := strings.Trim(b.String(), ".")
	if local == "" {
		local = core.RandomASCIIString(placeholderLength)
	}
	return local + "@" + domain
}
