package krb5

import (
	"errors"
	"fmt"

	"github.com/jcmturner/gokrb5/v8/iana/errorcode"
	"github.com/jcmturner/gokrb5/v8/messages"
)

// ErrCode is the fixed taxonomy of ticket-acquisition failures.
type ErrCode int

const (
	// CodeGeneric is the catch-all for failures outside the taxonomy.
	CodeGeneric ErrCode = iota

	// CodeCantReadPassword maps KRB5_LIBOS_CANTREADPWD: the stored
	// credential can no longer be read (expired password, stale keytab).
	CodeCantReadPassword

	// CodeClientRevoked maps KRB5KDC_ERR_CLIENT_REVOKED: the account
	// is locked or disabled.
	CodeClientRevoked

	// CodeCacheNotFound maps KRB5_CC_NOTFOUND: the system keytab lacks
	// an entry for the configured principal.
	CodeCacheNotFound

	// CodePolicyRejected maps KRB5KDC_ERR_POLICY: domain security
	// policy refused to issue a ticket.
	CodePolicyRejected

	// CodeUnknownPrincipal maps KRB5KDC_ERR_C_PRINCIPAL_UNKNOWN: the
	// client principal does not exist on the domain controller.
	CodeUnknownPrincipal

	// CodeClockSkew maps KRB5KRB_AP_ERR_SKEW: the clock offset between
	// the appliance and the domain controller is too large.
	CodeClockSkew

	// CodePreauthFailed maps KRB5KDC_ERR_PREAUTH_FAILED: the supplied
	// password or key is wrong.
	CodePreauthFailed
)

// AllCodes returns every taxonomy code. Used by tests to verify that
// the classification table is total.
func AllCodes() []ErrCode {
	return []ErrCode{
		CodeGeneric,
		CodeCantReadPassword,
		CodeClientRevoked,
		CodeCacheNotFound,
		CodePolicyRejected,
		CodeUnknownPrincipal,
		CodeClockSkew,
		CodePreauthFailed,
	}
}

// Error is a structured ticket-acquisition failure.
type Error struct {
	Code    ErrCode
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// NewError builds a structured error with a formatted message.
func NewError(code ErrCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// AsError extracts a structured *Error from err if present.
func AsError(err error) (*Error, bool) {
	var kerr *Error
	if errors.As(err, &kerr) {
		return kerr, true
	}
	return nil, false
}

// wrapKRBError converts a gokrb5 protocol error into the taxonomy.
// Anything without a known protocol code becomes CodeGeneric.
func wrapKRBError(err error) error {
	var krbErr messages.KRBError
	if !errors.As(err, &krbErr) {
		return &Error{Code: CodeGeneric, Message: err.Error()}
	}

	code := CodeGeneric
	switch krbErr.ErrorCode {
	case errorcode.KDC_ERR_CLIENT_REVOKED:
		code = CodeClientRevoked
	case errorcode.KDC_ERR_POLICY:
		code = CodePolicyRejected
	case errorcode.KDC_ERR_C_PRINCIPAL_UNKNOWN:
		code = CodeUnknownPrincipal
	case errorcode.KRB_AP_ERR_SKEW:
		code = CodeClockSkew
	case errorcode.KDC_ERR_PREAUTH_FAILED:
		code = CodePreauthFailed
	case errorcode.KDC_ERR_KEY_EXPIRED:
		code = CodeCantReadPassword
	}

	return &Error{Code: code, Message: krbErr.Error()}
}
