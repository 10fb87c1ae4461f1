package sync

import (
	"errors"
	"fmt"
)

// ErrorCode classifies failures reported to an ErrorReporter.
type ErrorCode string

const (
	ErrCodeInvalidMemberID ErrorCode = "invalid_member_id"
	ErrCodeUnknownMember   ErrorCode = "unknown_member"
	ErrCodeStore           ErrorCode = "store_error"
	ErrCodeRemote          ErrorCode = "remote_error"
)

// ErrMemberNotFound is returned by a Store when no member has the requested id.
var ErrMemberNotFound = errors.New("member not found")

// APIError is a remote-operation failure returned by the Campaign Monitor API.
type APIError struct {
	Code    int    `json:"Code"`
	Message string `json:"Message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("campaign monitor error %d: %s", e.Code, e.Message)
}

// ErrorDetail is the structured payload handed to an ErrorReporter.
type ErrorDetail struct {
	SiteID     int
	Code       ErrorCode
	RemoteCode int
	Message    string
	MemberID   int
	ListID     string
}

// detailFromError builds an ErrorDetail, lifting the remote code and message
// out of err when it wraps an *APIError.
func detailFromError(code ErrorCode, memberID int, listID string, err error) ErrorDetail {
	detail := ErrorDetail{
		Code:     code,
		MemberID: memberID,
		ListID:   listID,
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		detail.RemoteCode = apiErr.Code
		detail.Message = apiErr.Message
		return detail
	}
	if err != nil {
		detail.Message = err.Error()
	}
	return detail
}
