package httputil

import (
	"regexp"
	"strconv"

	"github.com/getsentry/sentry-go"
)

// HTTPStatusCodeTag is the name of the HTTP status code tag.
const HTTPStatusCodeTag = "http.response.status_code"

var uuidSegment = regexp.MustCompile(`/[0-9a-fA-F]{8}-?[0-9a-fA-F]{4}-?[0-9a-fA-F]{4}-?[0-9a-fA-F]{4}-?[0-9a-fA-F]{12}(/|$)`)

// SetHTTPStatusCodeTag sets the status code tag for the current request to the top-level transaction.
func SetHTTPStatusCodeTag(e *sentry.Event, hint *sentry.EventHint) *sentry.Event {
	if hint == nil || hint.Response == nil {
		return e
	}
	if e.Tags == nil {
		e.Tags = make(map[string]string)
	}
	if _, exists := e.Tags[HTTPStatusCodeTag]; !exists {
		e.Tags[HTTPStatusCodeTag] = strconv.Itoa(hint.Response.StatusCode)
	}
	return e
}

// AnonymizeTransactionName replaces snapshot ids in the transaction name so
// every snapshot lookup groups under one transaction.
func AnonymizeTransactionName(e *sentry.Event, hint *sentry.EventHint) *sentry.Event {
	e.Transaction = uuidSegment.ReplaceAllString(e.Transaction, "/:id$1")
	return e
}

// BeforeSendTransaction chains the transaction hooks above.
func BeforeSendTransaction(e *sentry.Event, hint *sentry.EventHint) *sentry.Event {
	return AnonymizeTransactionName(SetHTTPStatusCodeTag(e, hint), hint)
}
