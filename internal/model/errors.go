package model

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by every stage of a conversion. Concrete errors wrap
// one of these so callers classify with errors.Is.
var (
	ErrInput              = errors.New("input error")
	ErrToolUnavailable    = errors.New("external tool unavailable")
	ErrEncodeFailure      = errors.New("encode failure")
	ErrCancelled          = errors.New("conversion cancelled")
	ErrCompressionFailure = errors.New("compression failure")
)

var (
	ErrEmptyInput         = fmt.Errorf("%w: no image files found", ErrInput)
	ErrDirectoryNotFound  = fmt.Errorf("%w: directory does not exist", ErrInput)
	ErrMixedExtensions    = fmt.Errorf("%w: mixed input extensions; cannot use sequence input", ErrInput)
	ErrUnsupportedPayload = fmt.Errorf("%w: format not supported by compressor", ErrCompressionFailure)
)

func EncodeError(format Format, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrCancelled) || errors.Is(err, ErrEncodeFailure) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrEncodeFailure, format, err)
}

func CompressionError(err error) error {
	if err == nil || errors.Is(err, ErrCompressionFailure) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrCompressionFailure, err)
}

// IsRecoverable reports whether a failed external encode may be retried with
// the in-process encoder.
func IsRecoverable(err error) bool {
	return err != nil && !errors.Is(err, ErrCancelled)
}
