package confluence

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindOf_WrappedError(t *testing.T) {
	base := &Error{Kind: KindUpstreamNotFound, Status: 404, Message: "gone"}
	wrapped := fmt.Errorf("fetching attachment: %w", base)
	if KindOf(wrapped) != KindUpstreamNotFound {
		t.Errorf("expected %s through wrapping, got %s", KindUpstreamNotFound, KindOf(wrapped))
	}
}

func TestKindOf_UnclassifiedError(t *testing.T) {
	if got := KindOf(errors.New("boom")); got != KindInternal {
		t.Errorf("expected %s for plain error, got %s", KindInternal, got)
	}
}

func TestErrorString(t *testing.T) {
	e := &Error{Kind: KindUpstream, Status: 502, Message: "bad gateway"}
	if got := e.Error(); got != "UpstreamError (status 502): bad gateway" {
		t.Errorf("unexpected error string %q", got)
	}
	e = &Error{Kind: KindValidation, Message: "empty filename"}
	if got := e.Error(); got != "ValidationError: empty filename" {
		t.Errorf("unexpected error string %q", got)
	}
}

func TestErrFromStatus(t *testing.T) {
	cases := []struct {
		status int
		kind   ErrorKind
	}{
		{http.StatusNotFound, KindUpstreamNotFound},
		{http.StatusUnauthorized, KindUpstreamAuth},
		{http.StatusForbidden, KindUpstreamAuth},
		{http.StatusBadGateway, KindUpstream},
		{http.StatusTooManyRequests, KindUpstream},
	}
	for _, tc := range cases {
		e := errFromStatus(tc.status, "http://wiki.invalid/x")
		if e.Kind != tc.kind {
			t.Errorf("status %d: expected %s, got %s", tc.status, tc.kind, e.Kind)
		}
		if e.Status != tc.status {
			t.Errorf("status %d not carried, got %d", tc.status, e.Status)
		}
	}
}

func TestKindStringsAreStable(t *testing.T) {
	// These strings are part of the client-facing contract.
	want := map[ErrorKind]string{
		KindValidation:        "ValidationError",
		KindUpstreamNotFound:  "UpstreamNotFound",
		KindUpstreamAuth:      "UpstreamAuthError",
		KindUpstreamTransient: "UpstreamTransient",
		KindUpstream:          "UpstreamError",
		KindInternal:          "InternalError",
	}
	for kind, s := range want {
		if string(kind) != s {
			t.Errorf("kind %q drifted from %q", kind, s)
		}
	}
}
