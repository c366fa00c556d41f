/*******************************************************************************
* Copyright 2023 Stefan Majewsky <majewsky@gmx.net>
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

// Package config reads the configuration of the dirsync binaries from the
// environment and from the mapping file.
package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sapcc/go-bits/errext"
	"github.com/sapcc/go-bits/osext"

	"github.com/majewsky/dirsync/internal/grammars"
)

const defaultEnvFile = "/etc/dirsync/dirsync.env"

var (
	envDefaults = map[string]string{
		//empty value = not optional
		"DIRSYNC_DEBUG":                   "false",
		"DIRSYNC_CONFIG_PATH":             "/etc/dirsync/mapping.yaml",
		"DIRSYNC_LDAP_URL":                "",
		"DIRSYNC_LDAP_BASE_DN":            "",
		"DIRSYNC_LDAP_BIND_DN":            "",
		"DIRSYNC_LDAP_BIND_PASSWORD":      "",
		"DIRSYNC_GOOGLE_CREDENTIALS_PATH": "/etc/dirsync/credentials.json",
		"DIRSYNC_GOOGLE_ADMIN_EMAIL":      "",
		"DIRSYNC_SPOOL_DIR":               "/var/spool/dirsync",
		"DIRSYNC_STATE_DIR":               "/var/lib/dirsync",
		"DIRSYNC_API_LISTEN":              "127.0.0.1:8090",
		"DIRSYNC_RETRY_INTERVAL_SECS":     "30",
	}

	//these may be empty
	envOptional = []string{
		"DIRSYNC_GROUPS_SYNC", //overrides groups.sync in the mapping file
		"DIRSYNC_JOURNAL_DSN",
	}

	envFormats = map[string]func(string) bool{
		"DIRSYNC_DEBUG":               grammars.IsBoolean,
		"DIRSYNC_LDAP_BASE_DN":        grammars.IsLDAPSuffix,
		"DIRSYNC_API_LISTEN":          grammars.IsListenAddress,
		"DIRSYNC_RETRY_INTERVAL_SECS": grammars.IsNonnegativeInteger,
		"DIRSYNC_GROUPS_SYNC":         grammars.IsBoolean,
	}
)

// Environment holds the validated values of all relevant environment
// variables.
type Environment map[string]string

// ReadEnvironment loads the env file (if any) and then reads and validates
// all relevant environment variables. Variables that are already set take
// precedence over those from the env file.
func ReadEnvironment() (Environment, errext.ErrorSet) {
	var errs errext.ErrorSet

	envFile := os.Getenv("DIRSYNC_ENV_FILE")
	explicit := envFile != ""
	if !explicit {
		envFile = defaultEnvFile
	}
	err := godotenv.Load(envFile)
	if err != nil && (explicit || !errors.Is(err, fs.ErrNotExist)) {
		errs.Addf("cannot load %s: %s", envFile, err.Error())
	}

	env := make(Environment)
	for key, defaultValue := range envDefaults {
		value := osext.GetenvOrDefault(key, defaultValue)
		if value == "" {
			errs.Addf("missing required environment variable: %s", key)
			continue
		}
		env[key] = value
	}
	for _, key := range envOptional {
		env[key] = os.Getenv(key)
	}

	for key, check := range envFormats {
		value := env[key]
		if value != "" && !check(value) {
			errs.Addf("malformed environment variable: %s=%q", key, value)
		}
	}
	return env, errs
}

// Bool returns the value of a boolean variable.
func (e Environment) Bool(key string) bool {
	return e[key] == "true"
}

// RetryInterval returns the value of DIRSYNC_RETRY_INTERVAL_SECS.
func (e Environment) RetryInterval() time.Duration {
	secs, err := strconv.Atoi(e["DIRSYNC_RETRY_INTERVAL_SECS"])
	if err != nil {
		return 0
	}
	return time.Duration(secs) * time.Second
}
