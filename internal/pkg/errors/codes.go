package errors

import (
	"fmt"
	"net/http"
)

// Code represents an error code with HTTP status and message
type Code struct {
	Code    int    // Business error code
	Status  int    // HTTP status code
	Message string // Error message
}

// Error codes for different modules
const (
	// Success
	Success = 0

	// Common errors (1000-1999)
	ErrInternalServer  = 1000
	ErrInvalidParams   = 1001
	ErrNotFound        = 1002
	ErrUnauthorized    = 1003
	ErrForbidden       = 1004
	ErrTooManyRequests = 1005

	// User errors (2000-2999)
	ErrUserNotFound = 2000
	ErrUserBlocked  = 2001
	ErrAdminOnly    = 2002
	ErrPremiumOnly  = 2003
	ErrNotOwner     = 2004

	// Quota errors (3000-3999). Each refusal kind has its own code so the
	// caller can suggest the right remedy.
	ErrQuotaMonthlyLinks  = 3000
	ErrQuotaFileCount     = 3001
	ErrQuotaFileSize      = 3002
	ErrQuotaStorage       = 3003
	ErrPasswordNotAllowed = 3004

	// Link errors (4000-4999). Not-found and expired share one code on
	// purpose: requesters must not be able to tell them apart.
	ErrLinkNotFound  = 4000
	ErrLinkFileIndex = 4001
	ErrLinkEmpty     = 4002
	ErrLinkPassword  = 4003

	// Storage errors (5000-5999)
	ErrStorageUnavailable = 5000

	// Referral errors (6000-6999)
	ErrReferralUnknownCode    = 6000
	ErrReferralSelf           = 6001
	ErrReferralAlreadyApplied = 6002
)

// codeMap maps error codes to their details
var codeMap = map[int]Code{
	Success: {Success, http.StatusOK, "Success"},

	ErrInternalServer:  {ErrInternalServer, http.StatusInternalServerError, "Internal server error"},
	ErrInvalidParams:   {ErrInvalidParams, http.StatusBadRequest, "Invalid parameters"},
	ErrNotFound:        {ErrNotFound, http.StatusNotFound, "Resource not found"},
	ErrUnauthorized:    {ErrUnauthorized, http.StatusUnauthorized, "Unauthorized"},
	ErrForbidden:       {ErrForbidden, http.StatusForbidden, "Forbidden"},
	ErrTooManyRequests: {ErrTooManyRequests, http.StatusTooManyRequests, "Too many requests"},

	ErrUserNotFound: {ErrUserNotFound, http.StatusNotFound, "User not found"},
	ErrUserBlocked:  {ErrUserBlocked, http.StatusForbidden, "User is blocked"},
	ErrAdminOnly:    {ErrAdminOnly, http.StatusForbidden, "Administrator access required"},
	ErrPremiumOnly:  {ErrPremiumOnly, http.StatusForbidden, "Premium plan required"},
	ErrNotOwner:     {ErrNotOwner, http.StatusForbidden, "Not the owner of this resource"},

	ErrQuotaMonthlyLinks:  {ErrQuotaMonthlyLinks, http.StatusForbidden, "Monthly link limit reached"},
	ErrQuotaFileCount:     {ErrQuotaFileCount, http.StatusForbidden, "Too many files for this plan"},
	ErrQuotaFileSize:      {ErrQuotaFileSize, http.StatusForbidden, "File exceeds the plan size limit"},
	ErrQuotaStorage:       {ErrQuotaStorage, http.StatusForbidden, "Storage quota exceeded"},
	ErrPasswordNotAllowed: {ErrPasswordNotAllowed, http.StatusForbidden, "Password protection requires a premium plan"},

	ErrLinkNotFound:  {ErrLinkNotFound, http.StatusNotFound, "Link not found"},
	ErrLinkFileIndex: {ErrLinkFileIndex, http.StatusBadRequest, "File index out of range"},
	ErrLinkEmpty:     {ErrLinkEmpty, http.StatusBadRequest, "Link has no files"},
	ErrLinkPassword:  {ErrLinkPassword, http.StatusUnauthorized, "Wrong password"},

	ErrStorageUnavailable: {ErrStorageUnavailable, http.StatusServiceUnavailable, "No storage channel reachable"},

	ErrReferralUnknownCode:    {ErrReferralUnknownCode, http.StatusNotFound, "Unknown referral code"},
	ErrReferralSelf:           {ErrReferralSelf, http.StatusBadRequest, "Self-referral is not allowed"},
	ErrReferralAlreadyApplied: {ErrReferralAlreadyApplied, http.StatusConflict, "A referral was already applied to this account"},
}

// GetCode returns the Code for a given error code
func GetCode(code int) Code {
	if c, ok := codeMap[code]; ok {
		return c
	}
	return codeMap[ErrInternalServer]
}

// GetHTTPStatus returns HTTP status for a given error code
func GetHTTPStatus(code int) int {
	return GetCode(code).Status
}

// GetMessage returns the message for a given error code
func GetMessage(code int) string {
	return GetCode(code).Message
}

// IsSuccess checks if the code represents success
func IsSuccess(code int) bool {
	return code == Success
}

// FormatError formats an error message with code
func FormatError(code int, details ...string) string {
	msg := GetMessage(code)
	if len(details) > 0 && details[0] != "" {
		return fmt.Sprintf("%s: %s", msg, details[0])
	}
	return msg
}
