/*******************************************************************************
* Copyright 2023 Stefan Majewsky <majewsky@gmx.net>
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package ldap

import (
	"errors"
	"time"

	goldap "github.com/go-ldap/ldap/v3"
	"github.com/sapcc/go-bits/logg"

	"github.com/majewsky/dirsync/internal/core"
)

// Connection is an abstract interface for a privileged connection to the LDAP
// server. It is used by type Store to read and write the local directory.
// In tests, this interface's real implementation can be swapped for a double.
type Connection interface {
	BaseDN() string
	Search(goldap.SearchRequest) ([]*goldap.Entry, error)
	Modify(goldap.ModifyRequest) error
}

// ConnectionOptions contains all configuration values that we need to connect
// to the LDAP server.
type ConnectionOptions struct {
	URL      string //e.g. "ldaps://ldap.example.org"
	BaseDN   string //e.g. "dc=example,dc=org"
	BindDN   string //e.g. "cn=dirsync,cn=users,dc=example,dc=org"
	Password string
}

type connectionImpl struct {
	opts ConnectionOptions
	conn *goldap.Conn
}

// Connect establishes a connection to an LDAP server.
func Connect(opts ConnectionOptions) (Connection, error) {
	c := &connectionImpl{opts: opts}
	err := c.getConn(0, 5*time.Millisecond)
	return c, err
}

func (c *connectionImpl) getConn(retryCounter int, sleepInterval time.Duration) (err error) {
	//the LDAP server might still be starting up together with us -> when
	//initially connecting, retry up to 10 times with exponential backoff
	//(about 5-6 seconds in total)
	if retryCounter == 10 {
		return &core.Error{
			Kind:         core.ErrTransportFailure,
			Op:           "connect to",
			ResourceType: "LDAP server",
			Key:          c.opts.URL,
			Transient:    true,
			Cause:        errors.New("giving up after 10 connection attempts"),
		}
	}
	time.Sleep(sleepInterval)

	var conn *goldap.Conn
	conn, err = goldap.DialURL(c.opts.URL)
	if err == nil {
		err = conn.Bind(c.opts.BindDN, c.opts.Password)
		if err != nil {
			conn.Close()
		}
		if goldap.IsErrorWithCode(err, goldap.LDAPResultInvalidCredentials) {
			//retrying will not help here
			return classifyError("bind as", c.opts.BindDN, err)
		}
	}
	if err != nil {
		logg.Info("cannot connect to LDAP server (attempt %d/10): %s", retryCounter+1, err.Error())
		return c.getConn(retryCounter+1, sleepInterval*2)
	}

	c.conn = conn
	logg.Info("connected to LDAP server at %s", c.opts.URL)
	return nil
}

// BaseDN implements the Connection interface.
func (c *connectionImpl) BaseDN() string {
	return c.opts.BaseDN
}

// Search implements the Connection interface.
func (c *connectionImpl) Search(req goldap.SearchRequest) ([]*goldap.Entry, error) {
	var result *goldap.SearchResult
	err := c.withReconnect(func() (err error) {
		result, err = c.conn.Search(&req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result.Entries, nil
}

// Modify implements the Connection interface.
func (c *connectionImpl) Modify(req goldap.ModifyRequest) error {
	err := c.withReconnect(func() error {
		return c.conn.Modify(&req)
	})
	if err == nil {
		logg.Debug("LDAP object %s updated", req.DN)
	}
	return err
}

// withReconnect runs the action. If the connection was lost, it reconnects
// and tries once more.
func (c *connectionImpl) withReconnect(action func() error) error {
	if c.conn == nil {
		err := c.getConn(0, 5*time.Millisecond)
		if err != nil {
			return err
		}
	}
	err := action()
	if err == nil || !goldap.IsErrorWithCode(err, goldap.ErrorNetwork) {
		return err
	}

	logg.Info("lost connection to LDAP server: %s", err.Error())
	c.conn.Close()
	c.conn = nil
	err = c.getConn(0, 5*time.Millisecond)
	if err != nil {
		return err
	}
	return action()
}

// classifyError translates LDAP result codes into core.ErrorKind.
func classifyError(op, dn string, err error) error {
	if err == nil {
		return nil
	}
	kind := core.ErrTransportFailure
	transient := false
	switch {
	case goldap.IsErrorWithCode(err, goldap.LDAPResultNoSuchObject):
		kind = core.ErrNotFound
	case goldap.IsErrorWithCode(err, goldap.LDAPResultInvalidCredentials),
		goldap.IsErrorWithCode(err, goldap.LDAPResultInsufficientAccessRights):
		kind = core.ErrAuthFailure
	case goldap.IsErrorWithCode(err, goldap.ErrorNetwork),
		goldap.IsErrorWithCode(err, goldap.LDAPResultBusy),
		goldap.IsErrorWithCode(err, goldap.LDAPResultUnavailable):
		transient = true
	}
	return &core.Error{
		Kind:         kind,
		Op:           op,
		ResourceType: "LDAP object",
		Key:          dn,
		Transient:    transient,
		Cause:        err,
	}
}
