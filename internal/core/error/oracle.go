package errx

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

var (
	ErrOracleUnavailable = errors.New("oracle unavailable")
	ErrMalformedResponse = errors.New("oracle response malformed")
	ErrRateLimited       = errors.New("oracle rate limited")
)

// WrapOracle classifies a provider error. Timeouts and cancellations keep their
// context sentinel so callers can still match context.DeadlineExceeded.
func WrapOracle(err error) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return err
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return New(err, http.StatusGatewayTimeout, OracleErrorMessage)
	case isRateLimit(err):
		return New(errors.Join(ErrRateLimited, err), http.StatusTooManyRequests, OracleErrorMessage)
	default:
		return New(errors.Join(ErrOracleUnavailable, err), http.StatusBadGateway, OracleErrorMessage)
	}
}

// Malformed wraps a parse failure of an oracle response.
func Malformed(err error) error {
	return New(errors.Join(ErrMalformedResponse, err), http.StatusUnprocessableEntity, OracleMalformedMessage)
}

func isRateLimit(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") || strings.Contains(msg, "resource_exhausted") ||
		strings.Contains(msg, "rate limit")
}
