/*******************************************************************************
* Copyright 2023 Stefan Majewsky <majewsky@gmx.net>
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package ldap

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"

	"github.com/majewsky/dirsync/internal/core"
)

// EncodeRemoteData renders a cached remote document into the attribute value
// format: base64 of zlib-compressed JSON. A nil document is encoded as JSON
// null.
func EncodeRemoteData(doc core.Document) (string, error) {
	payload := []byte("null")
	if doc != nil {
		var err error
		payload, err = json.Marshal(doc)
		if err != nil {
			return "", err
		}
	}

	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	_, err := w.Write(payload)
	if err == nil {
		err = w.Close()
	}
	if err != nil {
		return "", fmt.Errorf("cannot compress remote data: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// DecodeRemoteData is the inverse of EncodeRemoteData.
func DecodeRemoteData(value string) (core.Document, error) {
	compressed, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("cannot decode remote data: %w", err)
	}
	r, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("cannot decompress remote data: %w", err)
	}
	defer r.Close()
	payload, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("cannot decompress remote data: %w", err)
	}
	return core.DocumentFromJSON(payload)
}
