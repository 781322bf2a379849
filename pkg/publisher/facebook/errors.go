package facebook

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/dmitrymomot/postflow/pkg/publisher"
)

// graphError is the error envelope the Graph API returns.
type graphError struct {
	Message   string `json:"message"`
	Type      string `json:"type"`
	Code      int    `json:"code"`
	Subcode   int    `json:"error_subcode"`
	TraceID   string `json:"fbtrace_id"`
	UserTitle string `json:"error_user_title"`
}

// Graph error codes that matter for retry classification.
const (
	codeAPIUnknown       = 1   // usually a transient platform issue
	codeAPIService       = 2   // service temporarily unavailable
	codeAPITooManyCalls  = 4   // app-level rate limit
	codeUserTooManyCalls = 17  // user-level rate limit
	codePageRateLimit    = 32  // page-level rate limit
	codeTokenExpired     = 190 // invalid or expired access token
	codePolicyBlock      = 368 // blocked for policy violation
	codeRateLimitCustom  = 613 // custom object rate limit
	codeDuplicatePost    = 506 // identical content posted twice
)

// classifyResponse maps a non-200 Graph API reply into the publisher
// taxonomy. Unknown codes fall back on the HTTP status: 429 and 5xx are
// transient, other 4xx mean the request itself is unacceptable.
func classifyResponse(statusCode int, body []byte) error {
	var envelope struct {
		Error *graphError `json:"error"`
	}
	_ = json.Unmarshal(body, &envelope)

	ge := envelope.Error
	if ge == nil {
		switch {
		case statusCode == http.StatusTooManyRequests:
			return publisher.NewError(publisher.ClassRateLimited, statusCode, "rate limited", nil)
		case statusCode >= 500:
			return publisher.NewError(publisher.ClassUnreachable, statusCode,
				fmt.Sprintf("graph api returned %d", statusCode), nil)
		default:
			return publisher.NewError(publisher.ClassRejected, statusCode,
				fmt.Sprintf("graph api returned %d: %s", statusCode, string(body)), nil)
		}
	}

	msg := fmt.Sprintf("graph error %d: %s", ge.Code, ge.Message)
	switch ge.Code {
	case codeTokenExpired:
		return publisher.NewError(publisher.ClassAuthExpired, statusCode, msg, nil)
	case codeAPITooManyCalls, codeUserTooManyCalls, codePageRateLimit, codeRateLimitCustom:
		return publisher.NewError(publisher.ClassRateLimited, statusCode, msg, nil)
	case codePolicyBlock, codeDuplicatePost:
		return publisher.NewError(publisher.ClassRejected, statusCode, msg, nil)
	case codeAPIUnknown, codeAPIService:
		return publisher.NewError(publisher.ClassUnreachable, statusCode, msg, nil)
	}

	// Permission and OAuth errors cannot be fixed by retrying the same call.
	if ge.Type == "OAuthException" {
		return publisher.NewError(publisher.ClassAuthExpired, statusCode, msg, nil)
	}
	return publisher.NewError(publisher.ClassRejected, statusCode, msg, nil)
}
