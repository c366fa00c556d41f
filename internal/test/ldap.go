/*******************************************************************************
* Copyright 2023 Stefan Majewsky <majewsky@gmx.net>
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package test

import (
	"fmt"
	"reflect"
	"testing"

	goldap "github.com/go-ldap/ldap/v3"
)

// LDAPConnectionDouble is a test double for the ldap.Connection interface.
// It will only accept requests that were announced beforehand through one of
// its Expect methods.
type LDAPConnectionDouble struct {
	baseDN                 string
	expectedSearchRequests []expectedRequest[goldap.SearchRequest]
	expectedModifyRequests []expectedRequest[goldap.ModifyRequest]
}

type expectedRequest[R any] struct {
	Request R
	Entries []*goldap.Entry
	Error   error
}

// NewLDAPConnectionDouble builds an LDAPConnectionDouble.
func NewLDAPConnectionDouble(baseDN string) *LDAPConnectionDouble {
	return &LDAPConnectionDouble{baseDN: baseDN}
}

// BaseDN implements the ldap.Connection interface.
func (d *LDAPConnectionDouble) BaseDN() string {
	return d.baseDN
}

// Search implements the ldap.Connection interface.
func (d *LDAPConnectionDouble) Search(req goldap.SearchRequest) ([]*goldap.Entry, error) {
	exp, err := removeIfExpected(&d.expectedSearchRequests, req)
	if err != nil {
		return nil, err
	}
	return exp.Entries, exp.Error
}

// Modify implements the ldap.Connection interface.
func (d *LDAPConnectionDouble) Modify(req goldap.ModifyRequest) error {
	exp, err := removeIfExpected(&d.expectedModifyRequests, req)
	if err != nil {
		return err
	}
	return exp.Error
}

func removeIfExpected[R any](pool *[]expectedRequest[R], req R) (expectedRequest[R], error) {
	for idx, exp := range *pool {
		if reflect.DeepEqual(exp.Request, req) {
			//this request was expected - remove it from the pool of expected requests
			*pool = append(append([]expectedRequest[R](nil), (*pool)[0:idx]...), (*pool)[idx+1:]...)
			return exp, nil
		}
	}
	return expectedRequest[R]{}, fmt.Errorf("unexpected LDAP request:\n\t%#v", req)
}

// ExpectSearch records that we expect a SearchRequest to be executed via this
// double after this call returns. The given entries will be returned.
func (d *LDAPConnectionDouble) ExpectSearch(req goldap.SearchRequest, entries ...*goldap.Entry) {
	d.expectedSearchRequests = append(d.expectedSearchRequests, expectedRequest[goldap.SearchRequest]{Request: req, Entries: entries})
}

// ExpectSearchFailing is like ExpectSearch, but the request will fail with
// the given error.
func (d *LDAPConnectionDouble) ExpectSearchFailing(req goldap.SearchRequest, err error) {
	d.expectedSearchRequests = append(d.expectedSearchRequests, expectedRequest[goldap.SearchRequest]{Request: req, Error: err})
}

// ExpectModify records that we expect a ModifyRequest to be executed via this
// double after this call returns.
func (d *LDAPConnectionDouble) ExpectModify(req goldap.ModifyRequest) {
	d.expectedModifyRequests = append(d.expectedModifyRequests, expectedRequest[goldap.ModifyRequest]{Request: req})
}

// ExpectModifyFailing is like ExpectModify, but the request will fail with
// the given error.
func (d *LDAPConnectionDouble) ExpectModifyFailing(req goldap.ModifyRequest, err error) {
	d.expectedModifyRequests = append(d.expectedModifyRequests, expectedRequest[goldap.ModifyRequest]{Request: req, Error: err})
}

// CheckAllExecuted fails the test if any of the expected requests that were
// enqueued with ExpectSearch or ExpectModify were not sent before this call.
func (d *LDAPConnectionDouble) CheckAllExecuted(t *testing.T) {
	t.Helper()
	for _, exp := range d.expectedSearchRequests {
		t.Errorf("did not observe as expected:\n\t%#v", exp.Request)
	}
	d.expectedSearchRequests = nil
	for _, exp := range d.expectedModifyRequests {
		t.Errorf("did not observe as expected:\n\t%#v", exp.Request)
	}
	d.expectedModifyRequests = nil
}
