package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Validation errors
var (
	ErrInvalidProcessName = errors.New("invalid process name")
	ErrInvalidCurrency    = errors.New("invalid currency code")
	ErrInvalidLanguage    = errors.New("invalid language code")
	ErrFileTooLarge       = errors.New("file exceeds maximum size")
	ErrInvalidEncoding    = errors.New("invalid file encoding")
)

// Validation constants
const (
	MaxProcessNameLength = 255
	MaxHandlerNameLength = 32
	MaxFileSize          = 32 << 20 // 32MB of encoded data
	MaxFilesPerProcess   = 64
)

// ValidateProcessName validates a process name
func ValidateProcessName(name string) error {
	name = strings.TrimSpace(name)

	if name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidProcessName)
	}

	if len(name) > MaxProcessNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidProcessName, MaxProcessNameLength)
	}

	return nil
}

// ValidateCurrency validates currency code
func ValidateCurrency(currency string) error {
	currency = strings.ToUpper(strings.TrimSpace(currency))

	if !IsCurrency(currency) {
		return fmt.Errorf("%w: %s is not a valid ISO 4217 currency code", ErrInvalidCurrency, currency)
	}

	return nil
}

// ValidateLanguage validates a two letter language code
func ValidateLanguage(language string) error {
	if len(language) != 2 || strings.ToLower(language) != language {
		return fmt.Errorf("%w: %q", ErrInvalidLanguage, language)
	}
	return nil
}

// ValidateFile validates an uploaded process file
func ValidateFile(file *ProcessFile) error {
	if file == nil || strings.TrimSpace(file.Name) == "" {
		return fmt.Errorf("%w: file name is required", ErrInvalidArgument)
	}

	switch file.Encoding {
	case EncodingUTF8, EncodingBase64, EncodingJSON:
	default:
		return fmt.Errorf("%w: %q for file %s", ErrInvalidEncoding, file.Encoding, file.Name)
	}

	if len(file.Data) > MaxFileSize {
		return fmt.Errorf("%w: %s has %d bytes, limit is %d", ErrFileTooLarge, file.Name, len(file.Data), MaxFileSize)
	}

	return nil
}

// ValidateProcessConfig validates the common settings of a process configuration
func ValidateProcessConfig(config ProcessConfig) error {
	if config.Has(ConfigCurrency) {
		if err := ValidateCurrency(config.Currency()); err != nil {
			return err
		}
	}
	if config.Has(ConfigLanguage) {
		if err := ValidateLanguage(config.String(ConfigLanguage)); err != nil {
			return err
		}
	}
	return nil
}

// ValidatePagination validates and limits pagination parameters
func ValidatePagination(limit, offset int) (int, int, error) {
	const MaxPageSize = 1000
	const DefaultPageSize = 50

	if limit <= 0 {
		limit = DefaultPageSize
	}

	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	if offset < 0 {
		offset = 0
	}

	return limit, offset, nil
}
