package realm

import (
	"context"
	"errors"
	"strings"
)

// Result is the classification of a membership probe.
type Result int

const (
	// Joined means the computer account is valid and in good standing.
	Joined Result = iota

	// NotJoined means the probe failed with a signature indicating the
	// appliance needs to (re)join. This is the only classification for
	// which an automatic rejoin is performed.
	NotJoined

	// Fault means the probe failed for an unrecognized reason. Faults
	// surface to the operator; retrying an unknown failure against a
	// domain controller risks destructive side effects.
	Fault
)

func (r Result) String() string {
	switch r {
	case Joined:
		return "JOINED"
	case NotJoined:
		return "NOT_JOINED"
	default:
		return "FAULT"
	}
}

// rejoinSignatures are the known diagnostic fragments that indicate a
// stale membership rather than an operational fault: credentials
// invalidated, computer account removed or disabled, malformed account
// name. Matching is a case-sensitive substring test.
var rejoinSignatures = []string{
	"0xfffffff6",
	"LDAP_INVALID_CREDENTIALS",
	"The name provided is not a properly formed account name",
	"The attempted logon is invalid.",
}

// ClassifyDiagnostic maps probe diagnostic text to NotJoined when it
// matches a known stale-membership signature, Fault otherwise.
func ClassifyDiagnostic(errstr string) Result {
	for _, sig := range rejoinSignatures {
		if strings.Contains(errstr, sig) {
			return NotJoined
		}
	}
	return Fault
}

// ProbeMembership asks the realm whether the appliance is currently a
// member in good standing. It is the idempotency gate for the join
// executor.
func ProbeMembership(ctx context.Context, a Authority, workgroup string) (Result, error) {
	err := a.TestJoin(ctx, workgroup)
	if err == nil {
		return Joined, nil
	}

	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		if r := ClassifyDiagnostic(cmdErr.Stderr); r == NotJoined {
			return NotJoined, nil
		}
		return Fault, err
	}
	return Fault, err
}
