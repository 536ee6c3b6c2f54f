package realm

import "testing"

func TestParseJoinError_StripsPrefix(t *testing.T) {
	err := ParseJoinError("realm-join: Failed to join domain: failed to lookup DC info\n")
	if err == nil {
		t.Fatal("expected an error")
	}
	want := "Failed to join domain: failed to lookup DC info"
	if err.Error() != want {
		t.Errorf("message = %q, want %q", err.Error(), want)
	}
}

func TestParseJoinError_InvalidConfigurationTruncated(t *testing.T) {
	err := ParseJoinError(`net: Invalid configuration ("workgroup" set to 'WRONG', should be 'EXAMPLE') and memberships will be disabled`)
	if err == nil {
		t.Fatal("expected an error")
	}
	want := `Invalid configuration ("workgroup" set to 'WRONG', should be 'EXAMPLE').`
	if err.Error() != want {
		t.Errorf("message = %q, want %q", err.Error(), want)
	}
}

func TestParseJoinError_NoColonPassthrough(t *testing.T) {
	err := ParseJoinError("  unstructured failure text  ")
	if err == nil {
		t.Fatal("expected an error")
	}
	if err.Error() != "unstructured failure text" {
		t.Errorf("message = %q, want trimmed passthrough", err.Error())
	}
}
