package domain

import (
	"errors"
	"fmt"
)

type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Err        error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches any AppError carrying the same code, so errors produced by
// WithError still satisfy errors.Is against the sentinel they came from.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func (e *AppError) WithError(err error) *AppError {
	return &AppError{
		Code:       e.Code,
		Message:    e.Message,
		StatusCode: e.StatusCode,
		Err:        err,
	}
}

// Pre-defined errors
var (
	ErrInternal = &AppError{
		Code:       "INTERNAL_ERROR",
		Message:    "An unexpected error occurred",
		StatusCode: 500,
	}

	ErrValidationFailed = &AppError{
		Code:       "VALIDATION_FAILED",
		Message:    "Request validation failed",
		StatusCode: 422,
	}

	ErrInvalidImage = &AppError{
		Code:       "INVALID_IMAGE",
		Message:    "Invalid image format or corrupted file",
		StatusCode: 422,
	}

	ErrRateLimitExceeded = &AppError{
		Code:       "RATE_LIMIT_EXCEEDED",
		Message:    "Rate limit exceeded, please try again later",
		StatusCode: 429,
	}

	// Capture errors. All of them are retryable by the caller.
	ErrDeviceBusy = &AppError{
		Code:       "DEVICE_BUSY",
		Message:    "Camera is in use by another session or process",
		StatusCode: 409,
	}

	ErrDeviceAbsent = &AppError{
		Code:       "DEVICE_ABSENT",
		Message:    "No camera device available",
		StatusCode: 503,
	}

	ErrCaptureTimeout = &AppError{
		Code:       "CAPTURE_TIMEOUT",
		Message:    "Camera did not respond in time",
		StatusCode: 504,
	}

	ErrNoFrame = &AppError{
		Code:       "NO_FRAME",
		Message:    "Camera returned no frame",
		StatusCode: 503,
	}

	ErrAlreadyAcquiring = &AppError{
		Code:       "ALREADY_ACQUIRING",
		Message:    "Camera acquisition already in progress",
		StatusCode: 409,
	}

	ErrSessionReleased = &AppError{
		Code:       "SESSION_RELEASED",
		Message:    "Capture session has been released",
		StatusCode: 409,
	}

	// Training errors
	ErrInsufficientSamples = &AppError{
		Code:       "INSUFFICIENT_SAMPLES",
		Message:    "Not enough sample diversity to train matcher",
		StatusCode: 422,
	}

	ErrMatcherUnavailable = &AppError{
		Code:       "MATCHER_UNAVAILABLE",
		Message:    "No matcher could be trained",
		StatusCode: 503,
	}

	// Enrollment errors
	ErrTooFewValidSamples = &AppError{
		Code:       "TOO_FEW_VALID_SAMPLES",
		Message:    "Not enough valid face samples for enrollment",
		StatusCode: 422,
	}

	ErrNoFaceDetected = &AppError{
		Code:       "NO_FACE_DETECTED",
		Message:    "No face detected in the image",
		StatusCode: 422,
	}

	// Authentication errors
	ErrAuthDeviceError = &AppError{
		Code:       "DEVICE_ERROR",
		Message:    "Camera failure during authentication",
		StatusCode: 503,
	}

	ErrNoMatch = &AppError{
		Code:       "NO_MATCH",
		Message:    "Face not recognized",
		StatusCode: 401,
	}

	// Identity store errors
	ErrIdentityNotFound = &AppError{
		Code:       "IDENTITY_NOT_FOUND",
		Message:    "Identity not found",
		StatusCode: 404,
	}

	ErrIdentityExists = &AppError{
		Code:       "IDENTITY_ALREADY_EXISTS",
		Message:    "Identity already enrolled",
		StatusCode: 409,
	}

	ErrStorage = &AppError{
		Code:       "STORAGE_ERROR",
		Message:    "Identity store failure",
		StatusCode: 500,
	}
)

// SampleRejection records why a single enrollment sample was discarded.
type SampleRejection struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// TooFewSamplesError is returned when fewer than the required number of
// enrollment samples survive face validation.
type TooFewSamplesError struct {
	Accepted int
	Required int
	Rejected []SampleRejection
}

func (e *TooFewSamplesError) Error() string {
	return fmt.Sprintf("%s: accepted %d, required %d, rejected %d",
		ErrTooFewValidSamples.Message, e.Accepted, e.Required, len(e.Rejected))
}

func (e *TooFewSamplesError) Is(target error) bool {
	if errors.Is(ErrTooFewValidSamples, target) {
		return true
	}
	// nothing usable at all is also a detection failure
	return e.Accepted == 0 && errors.Is(ErrNoFaceDetected, target)
}
