// Package krb5 provides the credential broker for directory-service
// membership operations.
//
// The broker turns user-supplied bind credentials or a stored machine
// principal into a usable kerberos ticket, and classifies acquisition
// failures into a fixed error taxonomy. The classification table maps
// every taxonomy code to a field-scoped, user-facing message so that
// pre-flight validation can report authentication problems as
// correctable field errors instead of raw protocol errors.
//
// The Client type wraps the gokrb5 library for the actual ticket
// exchange. It is hidden behind the TicketCache interface so executors
// and tests can substitute fakes.
package krb5
