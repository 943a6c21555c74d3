package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateProcessName(t *testing.T) {
	t.Parallel()

	t.Run("valid name", func(t *testing.T) {
		if err := ValidateProcessName("Bank import 2024"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	})

	t.Run("empty name rejected", func(t *testing.T) {
		err := ValidateProcessName("   ")
		if !errors.Is(err, ErrInvalidProcessName) {
			t.Fatalf("expected ErrInvalidProcessName, got %v", err)
		}
	})

	t.Run("name too long", func(t *testing.T) {
		err := ValidateProcessName(strings.Repeat("a", MaxProcessNameLength+1))
		if !errors.Is(err, ErrInvalidProcessName) {
			t.Fatalf("expected ErrInvalidProcessName, got %v", err)
		}
	})
}

func TestValidateCurrency(t *testing.T) {
	t.Parallel()

	if err := ValidateCurrency("eur"); err != nil {
		t.Fatalf("expected uppercase conversion to succeed, got %v", err)
	}

	if err := ValidateCurrency("XYZ"); !errors.Is(err, ErrInvalidCurrency) {
		t.Fatalf("expected ErrInvalidCurrency, got %v", err)
	}
}

func TestValidateFile(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		file        *ProcessFile
		expectError error
	}{
		{"valid", &ProcessFile{Name: "a.csv", Encoding: EncodingUTF8, Data: "x"}, nil},
		{"missing name", &ProcessFile{Encoding: EncodingUTF8}, ErrInvalidArgument},
		{"bad encoding", &ProcessFile{Name: "a.csv", Encoding: "utf-16"}, ErrInvalidEncoding},
		{"too large", &ProcessFile{Name: "a.csv", Encoding: EncodingBase64, Data: strings.Repeat("A", MaxFileSize+1)}, ErrFileTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFile(tt.file)
			if tt.expectError == nil && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if tt.expectError != nil && !errors.Is(err, tt.expectError) {
				t.Errorf("expected error %v, got %v", tt.expectError, err)
			}
		})
	}
}

func TestValidatePagination(t *testing.T) {
	t.Parallel()

	limit, offset, err := ValidatePagination(0, -5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if limit != 50 || offset != 0 {
		t.Fatalf("expected defaults 50/0, got %d/%d", limit, offset)
	}

	limit, _, _ = ValidatePagination(5000, 0)
	if limit != 1000 {
		t.Fatalf("expected limit capped to 1000, got %d", limit)
	}
}
