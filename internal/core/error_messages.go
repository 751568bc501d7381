package core

// # Error Codes Reference
//
// Errors returned to API callers carry a support code. Typed errors are
// classified first; anything else is matched by message pattern.
//
// # Tenant Errors (TEN001-TEN099)
//
//	TEN001 - Not found: tenant, workspace or connection is unknown
//	         Action: Register the tenant's connections before initializing
//	TEN002 - Already finished: the log entry was already finalized
//
// # Validation Errors (VAL001-VAL099)
//
//	VAL001 - Invalid request: one or more fields failed validation
//	         Action: Check the listed fields and resend
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large           Patterns: "file too large"
//	FILE002 - Unreadable file          Typed: ErrUnreadableFile
//	FILE003 - Encoding issue           Patterns: "encoding issue", "invalid utf-8"
//
// # External Call Errors (EXT001-EXT099)
//
//	EXT001 - Connection refused        Patterns: "connection refused", "no reachable servers"
//	EXT002 - Timeout                   Patterns: "deadline exceeded", "timeout"
//	EXT003 - Authentication failed     Patterns: "authentication failed", "password authentication"
//	EXT004 - Permission denied         Patterns: "permission denied", "not authorized"
//	EXT005 - Duplicate key             Patterns: "duplicate key", "e11000"
//	EXT000 - Other collaborator failure (typed ExternalCallError, no pattern matched)
//
// # Operation Errors (OPS001-OPS099)
//
//	OPS001 - System busy               Typed: ErrTooManyOperations
//	OPS002 - Request cancelled         Patterns: "context canceled"
//	OPS003 - Ledger write failed       Typed: ErrEntryNotFinalized
//	RATE001 - Rate limited             Patterns: "rate limit"
//
// # Default Error (ERR000)
//
// Fallback when nothing matches. Check the server log for the request id.
//
// Patterns are matched case-insensitively with strings.Contains; the first
// match wins, so specific patterns come before general ones.

import (
	"errors"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"`
	Action  string `json:"action"`
	Code    string `json:"code"`
}

var (
	msgNotFound = UserMessage{
		Message: "Tenant, workspace or connection not found",
		Action:  "Register the tenant's database connections before initializing",
		Code:    "TEN001",
	}
	msgEntryTerminal = UserMessage{
		Message: "This operation has already finished",
		Action:  "Start a new operation instead",
		Code:    "TEN002",
	}
	msgValidation = UserMessage{
		Message: "The request is invalid",
		Action:  "Check the listed fields and resend",
		Code:    "VAL001",
	}
	msgUnreadable = UserMessage{
		Message: "An uploaded file could not be read",
		Action:  "Check the file is a valid CSV, JSON, XLSX, PDF or text document",
		Code:    "FILE002",
	}
	msgBusy = UserMessage{
		Message: "Too many operations in progress",
		Action:  "Please wait a moment and try again",
		Code:    "OPS001",
	}
	msgNotFinalized = UserMessage{
		Message: "The operation ran but its log entry could not be recorded",
		Action:  "Check the status endpoint before retrying",
		Code:    "OPS003",
	}
	msgExternal = UserMessage{
		Message: "A database or storage call failed",
		Action:  "Check the tenant's connection settings and retry",
		Code:    "EXT000",
	}
)

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error text (lower case) to user messages.
var errorPatterns = []errorPattern{
	// =========================================================================
	// File Errors
	// =========================================================================
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds the maximum upload size",
			Action:  "Split the file into smaller files",
			Code:    "FILE001",
		},
	},
	{
		pattern: "encoding issue",
		msg: UserMessage{
			Message: "File contains invalid characters",
			Action:  "Save the file as UTF-8",
			Code:    "FILE003",
		},
	},
	{
		pattern: "invalid utf-8",
		msg: UserMessage{
			Message: "File contains invalid characters",
			Action:  "Save the file as UTF-8",
			Code:    "FILE003",
		},
	},

	// =========================================================================
	// Collaborator Errors
	// =========================================================================
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to the tenant database",
			Action:  "Check host and port of the registered connection",
			Code:    "EXT001",
		},
	},
	{
		pattern: "no reachable servers",
		msg: UserMessage{
			Message: "Unable to connect to the tenant database",
			Action:  "Check host and port of the registered connection",
			Code:    "EXT001",
		},
	},
	{
		pattern: "deadline exceeded",
		msg: UserMessage{
			Message: "The database call timed out",
			Action:  "Please try again later",
			Code:    "EXT002",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "The database call timed out",
			Action:  "Please try again later",
			Code:    "EXT002",
		},
	},
	{
		pattern: "password authentication",
		msg: UserMessage{
			Message: "The database rejected the stored credentials",
			Action:  "Re-register the connection with a valid password",
			Code:    "EXT003",
		},
	},
	{
		pattern: "authentication failed",
		msg: UserMessage{
			Message: "The database rejected the stored credentials",
			Action:  "Re-register the connection with a valid password",
			Code:    "EXT003",
		},
	},
	{
		pattern: "permission denied",
		msg: UserMessage{
			Message: "The database user lacks the required privileges",
			Action:  "Grant create privileges to the connection user",
			Code:    "EXT004",
		},
	},
	{
		pattern: "not authorized",
		msg: UserMessage{
			Message: "The database user lacks the required privileges",
			Action:  "Grant create privileges to the connection user",
			Code:    "EXT004",
		},
	},
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "A record with this key already exists",
			Action:  "Retry with overwrite_existing enabled",
			Code:    "EXT005",
		},
	},
	{
		pattern: "e11000",
		msg: UserMessage{
			Message: "A record with this key already exists",
			Action:  "Retry with overwrite_existing enabled",
			Code:    "EXT005",
		},
	},

	// =========================================================================
	// Request Errors
	// =========================================================================
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "OPS002",
		},
	},
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts an error to a user-facing message.
// Typed errors are classified first. Message patterns refine collaborator
// and file failures; otherwise the class default is used.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	switch {
	case IsValidation(err):
		return msgValidation
	case errors.Is(err, ErrTooManyOperations):
		return msgBusy
	case errors.Is(err, ErrEntryTerminal):
		return msgEntryTerminal
	case errors.Is(err, ErrEntryNotFinalized):
		return msgNotFinalized
	}

	if msg, ok := matchPattern(err); ok {
		return msg
	}

	switch {
	case IsNotFound(err):
		return msgNotFound
	case errors.Is(err, ErrUnreadableFile):
		return msgUnreadable
	case IsExternalCall(err):
		return msgExternal
	}
	return defaultMessage
}

func matchPattern(err error) (UserMessage, bool) {
	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg, true
		}
	}
	return UserMessage{}, false
}

// IsUserFacing reports whether err maps to something other than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
