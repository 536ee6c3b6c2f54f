package realm

import (
	"context"
	"errors"
	"testing"
)

type fakeAuthority struct {
	testJoinErr error
	joinCalls   int
}

func (f *fakeAuthority) LookupDC(ctx context.Context, domain string) (*DCInfo, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeAuthority) DomainInfo(ctx context.Context, domain string) (*DomainInfo, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeAuthority) TestJoin(ctx context.Context, workgroup string) error {
	return f.testJoinErr
}

func (f *fakeAuthority) Join(ctx context.Context, workgroup string, req JoinRequest) error {
	f.joinCalls++
	return nil
}

func (f *fakeAuthority) Leave(ctx context.Context, username string) error { return nil }

func (f *fakeAuthority) FlushCache(ctx context.Context) error { return nil }

func TestProbeMembership_Joined(t *testing.T) {
	a := &fakeAuthority{}

	r, err := ProbeMembership(context.Background(), a, "EXAMPLE")
	if err != nil {
		t.Fatalf("ProbeMembership returned error: %v", err)
	}
	if r != Joined {
		t.Errorf("result = %s, want JOINED", r)
	}
}

func TestProbeMembership_RejoinSignatures(t *testing.T) {
	signatures := []string{
		"0xfffffff6",
		"LDAP_INVALID_CREDENTIALS",
		"The name provided is not a properly formed account name",
		"The attempted logon is invalid.",
	}

	for _, sig := range signatures {
		a := &fakeAuthority{testJoinErr: &CommandError{
			Command:  "net ads testjoin",
			ExitCode: 255,
			Stderr:   "kerberos_kinit_password failed: " + sig + " trailing context",
		}}

		r, err := ProbeMembership(context.Background(), a, "EXAMPLE")
		if err != nil {
			t.Fatalf("signature %q: unexpected error: %v", sig, err)
		}
		if r != NotJoined {
			t.Errorf("signature %q: result = %s, want NOT_JOINED", sig, r)
		}
	}
}

func TestProbeMembership_UnknownDiagnosticIsFault(t *testing.T) {
	cause := &CommandError{
		Command:  "net ads testjoin",
		ExitCode: 1,
		Stderr:   "NT_STATUS_IO_TIMEOUT",
	}
	a := &fakeAuthority{testJoinErr: cause}

	r, err := ProbeMembership(context.Background(), a, "EXAMPLE")
	if r != Fault {
		t.Errorf("result = %s, want FAULT", r)
	}
	if err == nil {
		t.Fatal("expected the probe error to surface")
	}
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Errorf("error %v does not wrap *CommandError", err)
	}
}

func TestProbeMembership_NonCommandErrorIsFault(t *testing.T) {
	a := &fakeAuthority{testJoinErr: context.DeadlineExceeded}

	r, err := ProbeMembership(context.Background(), a, "EXAMPLE")
	if r != Fault {
		t.Errorf("result = %s, want FAULT", r)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want context.DeadlineExceeded", err)
	}
}

func TestClassifyDiagnostic_CaseSensitive(t *testing.T) {
	if r := ClassifyDiagnostic("ldap_invalid_credentials"); r != Fault {
		t.Errorf("lowercased signature classified as %s, want FAULT", r)
	}
}
