package models

import "errors"

// Common errors for directory-service operations.
var (
	// ErrRealmNotFound indicates the referenced kerberos realm record
	// does not exist.
	ErrRealmNotFound = errors.New("kerberos realm not found")

	// ErrKeytabNotFound indicates the named keytab record does not exist.
	ErrKeytabNotFound = errors.New("kerberos keytab not found")

	// ErrPrivilegeNotFound indicates the named privilege does not exist.
	ErrPrivilegeNotFound = errors.New("privilege not found")

	// ErrNoDomain indicates no domain name is present in configuration.
	ErrNoDomain = errors.New("no active directory domain is configured")

	// ErrOperationInFlight indicates a join or leave operation is
	// already running.
	ErrOperationInFlight = errors.New("a join or leave operation is already in progress")
)
