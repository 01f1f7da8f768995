package wire

import (
	"testing"

	"ocppgate/pkg/ocpp"
)

func TestErrorFactoryCodes(t *testing.T) {
	t.Parallel()

	cases := []struct {
		got  CallError
		code ocpp.ErrorCode
	}{
		{PayloadSerializeError("1", "x"), ocpp.InternalError},
		{PayloadDeserializeError("2", "x"), ocpp.FormationViolation},
		{NotImplemented("3", "DataTransfer"), ocpp.NotImplemented},
		{GenericError("4", "x"), ocpp.GenericError},
	}
	for _, tc := range cases {
		if tc.got.Code != tc.code {
			t.Fatalf("code = %q, want %q", tc.got.Code, tc.code)
		}
		if tc.got.Description == "" {
			t.Fatalf("expected description for %q", tc.code)
		}
	}

	if NotImplemented("3", "DataTransfer").Details != nil {
		t.Fatal("NotImplemented must leave details unset")
	}
}
