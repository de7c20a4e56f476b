package client

import (
	"net/http"

	"github.com/Sternrassler/redmine-connector/pkg/apierr"
)

// ErrorClass represents a classification of failed calls for metrics.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassThrottled represents calls refused by a back-off window.
	ErrorClassThrottled ErrorClass = "throttled"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

// classifyStatus maps a failed response status to its class.
func classifyStatus(statusCode int) ErrorClass {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return ErrorClassThrottled
	case statusCode >= 400 && statusCode < 500:
		return ErrorClassClient
	case statusCode >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// kindForStatus maps a failed response status to an error kind.
func kindForStatus(statusCode int) apierr.Kind {
	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return apierr.KindUnauthorized
	case http.StatusNotFound:
		return apierr.KindObjectNotFound
	case http.StatusUnprocessableEntity:
		return apierr.KindUnprocessableEntity
	default:
		return apierr.KindStatus
	}
}

// statusError builds the error returned for a non-success response. The body
// is kept only for 422, where it carries the server's error list.
func statusError(op string, resp *http.Response, body []byte) *apierr.Error {
	e := &apierr.Error{
		Kind:       kindForStatus(resp.StatusCode),
		Op:         op,
		StatusCode: resp.StatusCode,
		Message:    http.StatusText(resp.StatusCode),
	}
	if e.Kind == apierr.KindUnprocessableEntity {
		e.Body = body
	}
	return e
}
