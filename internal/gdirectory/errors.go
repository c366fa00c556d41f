/*******************************************************************************
* Copyright 2023 Stefan Majewsky <majewsky@gmx.net>
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package gdirectory

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"

	"github.com/majewsky/dirsync/internal/core"
)

var rateLimitReasons = map[string]bool{
	"rateLimitExceeded":     true,
	"userRateLimitExceeded": true,
	"quotaExceeded":         true,
}

// classifyError translates errors from the API client into *core.Error.
func classifyError(err error, op string, rt core.ResourceType, key string) error {
	if err == nil {
		return nil
	}
	kind := core.ErrTransportFailure
	transient := false

	var (
		apiErr   *googleapi.Error
		tokenErr *oauth2.RetrieveError
	)
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		//not a failure of the remote side
	case errors.As(err, &tokenErr):
		//the service account may not have been granted domain-wide delegation yet
		kind = core.ErrAuthFailure
		transient = tokenErr.ErrorCode == "unauthorized_client"
	case errors.As(err, &apiErr):
		switch {
		case apiErr.Code == http.StatusNotFound:
			kind = core.ErrNotFound
		case apiErr.Code == http.StatusConflict:
			kind = core.ErrConflict
		case apiErr.Code == http.StatusPreconditionFailed && strings.Contains(strings.ToLower(apiErr.Error()), "limit"):
			kind = core.ErrLimitReached
		case apiErr.Code == http.StatusUnauthorized:
			kind = core.ErrAuthFailure
		case apiErr.Code == http.StatusForbidden:
			transient = true
			if !isRateLimited(apiErr) {
				kind = core.ErrAuthFailure
			}
		case apiErr.Code == http.StatusTooManyRequests, apiErr.Code >= 500:
			transient = true
		}
	default:
		//connection problems and the like
		transient = true
	}

	return &core.Error{
		Kind:         kind,
		Op:           op,
		ResourceType: string(rt),
		Key:          key,
		Transient:    transient,
		Cause:        err,
	}
}

func isRateLimited(apiErr *googleapi.Error) bool {
	for _, item := range apiErr.Errors {
		if rateLimitReasons[item.Reason] {
			return true
		}
	}
	return false
}
