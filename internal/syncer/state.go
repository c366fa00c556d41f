/*******************************************************************************
* Copyright 2023 Stefan Majewsky <majewsky@gmx.net>
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package syncer

import (
	"context"

	"github.com/sapcc/go-bits/logg"

	"github.com/majewsky/dirsync/internal/core"
)

// ConnectionState describes whether the remote directory can be used.
type ConnectionState struct {
	Connected bool `json:"connected"`
	//Set while the service account has not been granted access yet.
	WaitingForAuthorization bool   `json:"waiting_for_authorization"`
	Message                 string `json:"message,omitempty"`
}

// CheckConnection lists a single user to find out whether the remote
// directory accepts our credentials.
func CheckConnection(ctx context.Context, remote core.RemoteDirectory) ConnectionState {
	_, err := remote.List(ctx, core.ResourceUsers, core.ListOptions{MaxResults: 1})
	if err == nil {
		return ConnectionState{Connected: true}
	}
	logg.Error("connection check failed: %s", err.Error())
	return ConnectionState{
		WaitingForAuthorization: core.IsKind(err, core.ErrAuthFailure) && core.IsTransient(err),
		Message:                 core.UserMessage(err),
	}
}
