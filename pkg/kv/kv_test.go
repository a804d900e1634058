package kv

import (
	"errors"
	"testing"
)

func TestValidateKey(t *testing.T) {
	tests := []struct {
		key     string
		wantErr bool
	}{
		{"foo", false},
		{"with-dash_and.dot", false},
		{"0", false},
		{"", true},
		{"a/b", true},
	}

	for _, tt := range tests {
		err := ValidateKey(tt.key)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateKey(%q) error = %v, wantErr %v", tt.key, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, ErrInvalidKey) {
			t.Errorf("ValidateKey(%q) error = %v, want ErrInvalidKey", tt.key, err)
		}
	}
}

func TestValidateValue(t *testing.T) {
	valid := []string{`""`, `0`, `false`, `null`, `{}`, `[]`, `"bar"`, `{"nested":[1,2]}`}
	for _, v := range valid {
		if err := ValidateValue(Value(v)); err != nil {
			t.Errorf("ValidateValue(%s) = %v, want nil", v, err)
		}
	}

	invalid := []string{``, `{`, `bar`, `1 2`}
	for _, v := range invalid {
		if err := ValidateValue(Value(v)); !errors.Is(err, ErrInvalidValue) {
			t.Errorf("ValidateValue(%q) = %v, want ErrInvalidValue", v, err)
		}
	}
}
