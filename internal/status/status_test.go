package status

import (
	"errors"
	"fmt"
	"testing"
)

func TestOK(t *testing.T) {
	s := OK()
	if !s.Ok() {
		t.Fatal("expected OK status to report Ok() == true")
	}
	if s.Error() != "OK" {
		t.Errorf("expected Error() == %q, got %q", "OK", s.Error())
	}
}

func TestConstructorsSetCode(t *testing.T) {
	cases := []struct {
		name string
		s    Status
		code Code
	}{
		{"NotFound", NotFound("missing"), CodeNotFound},
		{"Corruption", Corruption("bad checksum"), CodeCorruption},
		{"IOError", IOError("disk fault"), CodeIOError},
		{"Empty", Empty(), CodeEmpty},
		{"NotSupported", NotSupported("no offload"), CodeNotSupported},
		{"InvalidArgument", InvalidArgument("bad key"), CodeInvalidArgument},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.s.Ok() {
				t.Fatalf("%s status must not be Ok()", tc.name)
			}
			if tc.s.Code() != tc.code {
				t.Errorf("expected code %v, got %v", tc.code, tc.s.Code())
			}
		})
	}
}

func TestIsPredicates(t *testing.T) {
	if !NotFound("x").IsNotFound() {
		t.Error("IsNotFound should be true for a NotFound status")
	}
	if !Corruption("x").IsCorruption() {
		t.Error("IsCorruption should be true for a Corruption status")
	}
	if !IOError("x").IsIOError() {
		t.Error("IsIOError should be true for an IOError status")
	}
	if !Empty().IsEmpty() {
		t.Error("IsEmpty should be true for an Empty status")
	}
	if !NotSupported("x").IsNotSupported() {
		t.Error("IsNotSupported should be true for a NotSupported status")
	}
	if NotFound("x").IsCorruption() {
		t.Error("IsCorruption should be false for a NotFound status")
	}
}

func TestErrorFormatting(t *testing.T) {
	s := NotFound("key xyz")
	want := "NotFound: key xyz"
	if s.Error() != want {
		t.Errorf("expected %q, got %q", want, s.Error())
	}

	noMsg := Status{code: CodeIOError}
	if noMsg.Error() != "IOError" {
		t.Errorf("expected bare code string when msg is empty, got %q", noMsg.Error())
	}
}

func TestFromError(t *testing.T) {
	if st := FromError(nil); !st.Ok() {
		t.Error("FromError(nil) should be OK")
	}
	err := errors.New("boom")
	st := FromError(err)
	if !st.IsIOError() {
		t.Errorf("FromError should wrap as IOError, got code %v", st.Code())
	}
	if st.Error() != fmt.Sprintf("IOError: %s", err.Error()) {
		t.Errorf("unexpected error text: %q", st.Error())
	}
}

func TestStatusComposesAsGoError(t *testing.T) {
	st := NotFound("key")
	wrapped := fmt.Errorf("lookup failed: %w", st)
	var target Status
	if !errors.As(wrapped, &target) {
		t.Fatal("expected errors.As to unwrap a wrapped Status")
	}
	if !target.IsNotFound() {
		t.Error("unwrapped status should preserve NotFound code")
	}
}

func TestCodeString(t *testing.T) {
	if CodeOK.String() != "OK" {
		t.Errorf("expected OK, got %q", CodeOK.String())
	}
	var unknown Code = 99
	if unknown.String() != "Unknown" {
		t.Errorf("expected Unknown for an out-of-range code, got %q", unknown.String())
	}
}
