package device

import (
	"errors"
	"testing"
)

func TestNormalizeSerial(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{input: "aa:11:BB:22:cc:33", want: "AA11BB22CC33"},
		{input: "AA11BB22CC33", want: "AA11BB22CC33"},
		{input: "aa-11-bb-22-cc-33", want: "AA11BB22CC33"},
		{input: "  aabbccddeeff ", want: "AABBCCDDEEFF"},
		{input: "", want: ""},
		{input: "not-a-mac", want: "NOTAMAC"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := NormalizeSerial(tt.input)
			if got != tt.want {
				t.Errorf("NormalizeSerial(%q) = %q, want %q", tt.input, got, tt.want)
			}
			if again := NormalizeSerial(got); again != got {
				t.Errorf("NormalizeSerial not idempotent: %q -> %q", got, again)
			}
		})
	}
}

func TestValidateSerial(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "valid", input: "AABBCCDDEEFF"},
		{name: "digits only", input: "001122334455"},
		{name: "lower case rejected", input: "aabbccddeeff", wantErr: true},
		{name: "too short", input: "AABBCCDDEE", wantErr: true},
		{name: "too long", input: "AABBCCDDEEFF00", wantErr: true},
		{name: "non hex", input: "GGBBCCDDEEFF", wantErr: true},
		{name: "with colons", input: "AA:BB:CC:DD:EE:FF", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSerial(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidSerial) {
					t.Errorf("ValidateSerial(%q) = %v, want ErrInvalidSerial", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Errorf("ValidateSerial(%q) = %v, want nil", tt.input, err)
			}
		})
	}
}

func TestParseSerial(t *testing.T) {
	got, err := ParseSerial("aa:bb:cc:dd:ee:ff")
	if err != nil {
		t.Fatalf("ParseSerial() error = %v", err)
	}
	if got != "AABBCCDDEEFF" {
		t.Errorf("ParseSerial() = %q, want AABBCCDDEEFF", got)
	}

	if _, err := ParseSerial("zz:zz"); !errors.Is(err, ErrInvalidSerial) {
		t.Errorf("ParseSerial(bad) error = %v, want ErrInvalidSerial", err)
	}
}
