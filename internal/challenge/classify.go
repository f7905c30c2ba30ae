package challenge

import (
	"bytes"
	"net/http"
)

// Challenge page markers. A response embedding BOTH is a challenge even
// when the status code looks successful.
const (
	markerProps  = "gokuProps"
	markerScript = "challenge.js"
)

// Classification is the verdict on a portal response.
type Classification int

const (
	// ClassAccepted means the portal accepted the request.
	ClassAccepted Classification = iota

	// ClassChallenged means the response is a bot-mitigation challenge that
	// must be solved before the request can succeed.
	ClassChallenged

	// ClassRejected means the portal rejected the request for content
	// reasons. Not retryable.
	ClassRejected
)

// String returns a human-readable classification name.
func (c Classification) String() string {
	switch c {
	case ClassAccepted:
		return "accepted"
	case ClassChallenged:
		return "challenged"
	case ClassRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// successMarkers are the substrings an accepted response body carries,
// matched case-insensitively.
var successMarkers = [][]byte{[]byte("success"), []byte("valid")}

// Classify inspects a response's status and body and decides whether it is
// accepted, challenged, or rejected.
//
// The challenge check runs first: 202 and 403 are the mitigation layer's
// blocking statuses, and a body carrying both challenge markers is a
// challenge regardless of status, covering the 200-with-embedded-challenge
// case. Acceptance then requires status 200 and a success marker in the
// body; everything else is a rejection.
func Classify(statusCode int, body []byte) Classification {
	if statusCode == http.StatusAccepted || statusCode == http.StatusForbidden {
		return ClassChallenged
	}
	if bytes.Contains(body, []byte(markerProps)) && bytes.Contains(body, []byte(markerScript)) {
		return ClassChallenged
	}

	if statusCode == http.StatusOK {
		lower := bytes.ToLower(body)
		for _, marker := range successMarkers {
			if bytes.Contains(lower, marker) {
				return ClassAccepted
			}
		}
	}

	return ClassRejected
}
