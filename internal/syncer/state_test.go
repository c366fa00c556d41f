/*******************************************************************************
* Copyright 2023 Stefan Majewsky <majewsky@gmx.net>
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package syncer

import (
	"context"
	"errors"
	"testing"

	"github.com/sapcc/go-bits/assert"

	"github.com/majewsky/dirsync/internal/core"
	"github.com/majewsky/dirsync/internal/test"
)

func TestCheckConnection(t *testing.T) {
	ctx := context.Background()
	remote := test.NewRemoteDirectoryDouble()
	call := "GET users?query=&pageToken="

	assert.DeepEqual(t, "state", CheckConnection(ctx, remote), ConnectionState{Connected: true})

	authErr := &core.Error{Kind: core.ErrAuthFailure, Op: "list", ResourceType: "users", Transient: true, Cause: errors.New("unauthorized_client")}
	remote.FailNext(call, authErr)
	assert.DeepEqual(t, "state", CheckConnection(ctx, remote), ConnectionState{
		WaitingForAuthorization: true,
		Message:                 core.UserMessage(authErr),
	})

	authErr = &core.Error{Kind: core.ErrAuthFailure, Op: "list", ResourceType: "users", Cause: errors.New("invalid_grant")}
	remote.FailNext(call, authErr)
	assert.DeepEqual(t, "state", CheckConnection(ctx, remote), ConnectionState{
		Message: core.UserMessage(authErr),
	})
}
