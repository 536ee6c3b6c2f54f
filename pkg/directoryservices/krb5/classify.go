package krb5

import "fmt"

// Field names used for attributing authentication failures to a
// correctable configuration field.
const (
	FieldDomainName        = "domainname"
	FieldBindName          = "bindname"
	FieldBindPW            = "bindpw"
	FieldKerberosPrincipal = "kerberos_principal"
)

// Classification is a field-scoped, user-facing rendering of a
// ticket-acquisition failure.
type Classification struct {
	Field   string
	Message string
}

// fieldPolicy selects which configuration field a failure attributes to.
type fieldPolicy int

const (
	// byCredential attributes to the keytab field when a principal is
	// configured, otherwise to the password field.
	byCredential fieldPolicy = iota

	// toBindName reattributes password-mode failures to the bind-name
	// field. Keytab-mode failures keep the principal field.
	toBindName

	// toDomainName always attributes to the domain name, regardless of
	// credential mode.
	toDomainName
)

// rule is one row of the classification table. An empty message means
// "use the raw error text".
type rule struct {
	policy      fieldPolicy
	keytabMsg   string
	passwordMsg string
}

// classificationTable is the total mapping from taxonomy code to
// field and message. It is data, not control flow, so tests can
// enumerate it exhaustively.
var classificationTable = map[ErrCode]rule{
	CodeCantReadPassword: {
		policy:      byCredential,
		keytabMsg:   "Kerberos keytab is no longer valid.",
		passwordMsg: "Active Directory account password for user %s is expired.",
	},
	CodeClientRevoked: {
		policy:      byCredential,
		keytabMsg:   "Active Directory account is locked.",
		passwordMsg: "Active Directory account is locked.",
	},
	CodeCacheNotFound: {
		policy: byCredential,
		keytabMsg: "System keytab lacks an entry for the specified kerberos principal. " +
			"Please select a valid kerberos principal from available choices.",
		// A missing cache entry should not occur with username and
		// password credentials. Surface the raw error.
		passwordMsg: "",
	},
	CodePolicyRejected: {
		policy: byCredential,
		keytabMsg: "Active Directory security policy rejected request to obtain kerberos ticket. " +
			"This may occur if the bind account has been configured to deny interactive " +
			"logons or require two-factor authentication. Depending on organizational " +
			"security policies, one may be required to pre-generate a kerberos keytab " +
			"and upload to TrueNAS server for use during join process.",
		passwordMsg: "Active Directory security policy rejected request to obtain kerberos ticket. " +
			"This may occur if the bind account has been configured to deny interactive " +
			"logons or require two-factor authentication. Depending on organizational " +
			"security policies, one may be required to pre-generate a kerberos keytab " +
			"and upload to TrueNAS server for use during join process.",
	},
	CodeUnknownPrincipal: {
		policy: toBindName,
		keytabMsg: "Client's credentials were not found on remote domain controller. The most " +
			"common reasons for the domain controller to return this response is due to a " +
			"typo in the service account name or the service or the computer account being " +
			"deleted from Active Directory.",
		passwordMsg: "Client's credentials were not found on remote domain controller. The most " +
			"common reasons for the domain controller to return this response is due to a " +
			"typo in the service account name or the service or the computer account being " +
			"deleted from Active Directory.",
	},
	CodeClockSkew: {
		policy: toDomainName,
		keytabMsg: "The time offset between the TrueNAS server and the active directory domain " +
			"controller exceeds the maximum value permitted by the Active Directory " +
			"configuration. This may occur if NTP is improperly configured on the " +
			"TrueNAS server or if the hardware clock on the TrueNAS server is configured " +
			"for a local timezone instead of UTC.",
		passwordMsg: "The time offset between the TrueNAS server and the active directory domain " +
			"controller exceeds the maximum value permitted by the Active Directory " +
			"configuration. This may occur if NTP is improperly configured on the " +
			"TrueNAS server or if the hardware clock on the TrueNAS server is configured " +
			"for a local timezone instead of UTC.",
	},
	CodePreauthFailed: {
		policy: byCredential,
		keytabMsg: "Kerberos principal credentials are no longer valid. Rejoining active directory " +
			"may be required.",
		passwordMsg: "Preauthentication failed. This typically indicates an incorrect bind password.",
	},
	CodeGeneric: {
		policy:      byCredential,
		keytabMsg:   "",
		passwordMsg: "",
	},
}

// Classify converts a structured acquisition error into a field-scoped
// message. It is total over ErrCode; unknown codes fall back to the
// generic rule.
//
// Attribution is context sensitive: failures attribute to the keytab
// field when a principal is configured and to the password field
// otherwise. An unknown-principal error reattributes password-mode
// failures to the bind-name field (the account, not the password, is
// what the KDC rejected). A clock-skew error always attributes to the
// domain name because skew is a connectivity-class problem, not a
// credential problem.
func Classify(err *Error, principalPresent bool, bindName string) Classification {
	r, ok := classificationTable[err.Code]
	if !ok {
		r = classificationTable[CodeGeneric]
	}

	field := FieldBindPW
	msg := r.passwordMsg
	if principalPresent {
		field = FieldKerberosPrincipal
		msg = r.keytabMsg
	}

	switch r.policy {
	case toBindName:
		if !principalPresent {
			field = FieldBindName
		}
	case toDomainName:
		field = FieldDomainName
	}

	if msg == "" {
		msg = err.Message
	}
	if err.Code == CodeCantReadPassword && !principalPresent {
		msg = fmt.Sprintf(r.passwordMsg, bindName)
	}

	return Classification{Field: field, Message: msg}
}
