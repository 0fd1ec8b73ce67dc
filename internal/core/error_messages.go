package core

// error_messages.go maps technical errors to messages a user can act on.
//
// Each message carries a code users can quote to support:
//
//	DS001   - The file has no rows
//	DS002   - Two header columns share a name
//	EXP001  - Export selected no rows
//	EXP002  - Unknown export mode
//	EXP003  - Unknown export format
//	REC001  - Record id did not resolve
//	SES001  - Session not found or expired
//	SES002  - Too many open sessions
//	FILE001 - File exceeds the size limit
//	FILE002 - File extension is not a supported spreadsheet type
//	FILE003 - Workbook could not be read
//	FILE004 - No file in the request
//	UPL002  - Every decode slot is busy
//	UPL004  - Request cancelled
//	UPL005  - Request timed out
//	RATE001 - Rate limited
//	ERR000  - Anything else; check the logs for the technical error
//
// Patterns are matched case-insensitively with strings.Contains and the first
// match wins, so specific patterns come before general ones.

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened
	Action  string // What to do about it
	Code    string // Support reference
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// Dataset
	{
		pattern: "empty dataset",
		msg: UserMessage{
			Message: "The file contains no rows",
			Action:  "Upload a spreadsheet with a header row and data rows",
			Code:    "DS001",
		},
	},
	{
		pattern: "duplicate header",
		msg: UserMessage{
			Message: "Two columns have the same header name",
			Action:  "Rename the duplicate columns and upload again",
			Code:    "DS002",
		},
	},

	// Export
	{
		pattern: "empty result",
		msg: UserMessage{
			Message: "No data to export",
			Action:  "Choose a different export option",
			Code:    "EXP001",
		},
	},
	{
		pattern: "invalid export mode",
		msg: UserMessage{
			Message: "Unknown export option",
			Action:  "Use all or missing",
			Code:    "EXP002",
		},
	},
	{
		pattern: "unsupported export format",
		msg: UserMessage{
			Message: "Unknown export format",
			Action:  "Use xlsx or csv",
			Code:    "EXP003",
		},
	},

	// Reconcile
	{
		pattern: "record not found",
		msg: UserMessage{
			Message: "Record not found",
			Action:  "Reload the record list and try again",
			Code:    "REC001",
		},
	},

	// Session
	{
		pattern: "session not found",
		msg: UserMessage{
			Message: "This dataset is no longer loaded",
			Action:  "Upload the file again to start a new session",
			Code:    "SES001",
		},
	},
	{
		pattern: "too many sessions",
		msg: UserMessage{
			Message: "Too many datasets are open",
			Action:  "Close a dataset you no longer need and try again",
			Code:    "SES002",
		},
	},

	// File
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds the maximum upload size",
			Action:  "Split the file into smaller workbooks",
			Code:    "FILE001",
		},
	},
	{
		pattern: "unsupported file format",
		msg: UserMessage{
			Message: "This file type is not supported",
			Action:  "Upload an .xlsx, .xlsm or .csv file",
			Code:    "FILE002",
		},
	},
	{
		pattern: "invalid spreadsheet",
		msg: UserMessage{
			Message: "The workbook could not be read",
			Action:  "Open the file in a spreadsheet program, save it again and retry",
			Code:    "FILE003",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Please select a spreadsheet to upload",
			Code:    "FILE004",
		},
	},

	// Upload
	{
		pattern: "too many concurrent uploads",
		msg: UserMessage{
			Message: "System is busy processing other uploads",
			Action:  "Please wait a moment and try again",
			Code:    "UPL002",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "UPL004",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Try a smaller file or check your connection",
			Code:    "UPL005",
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

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message. Unknown
// errors map to ERR000.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())

	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError renders "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific message rather than
// the ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
