package core

// # Error Codes Reference
//
// This file defines user-friendly error messages with codes for support reference.
// When users encounter errors, they can quote the error code to support staff
// for faster diagnosis.
//
// # Validation Errors (VAL001-VAL099)
//
//	VAL001 - Unknown dataset           Patterns: "unknown dataset"
//	VAL002 - Invalid number            Patterns: "invalid number"
//	VAL003 - Required field            Patterns: "required field"
//	VAL004 - Out of range              Patterns: "out of range"
//	VAL005 - Self connection           Patterns: "self-connection"
//	VAL006 - Invalid enum              Patterns: "must be one of"
//	VAL007 - Invalid year or month     Patterns: "invalid year", "invalid month"
//	VAL008 - Missing column            Patterns: "missing required column"
//	VAL009 - Invalid GeoJSON           Patterns: "invalid geojson"
//	VAL010 - Invalid direction         Patterns: "invalid direction"
//	VAL011 - Invalid request body      Patterns: "invalid json", "request body too large"
//
// # Province Errors (PRV001-PRV099)
//
//	PRV001 - Province not found        Patterns: "province not found"
//	PRV002 - Missing province ref      Patterns: "province reference"
//
// # Map Errors (MAP001-MAP099)
//
//	MAP001 - No data for year          Patterns: "data found for"
//	MAP002 - Invalid filter            Patterns: "invalid filter"
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Duplicate record           Patterns: "already exists"
//	DB002 - Unique constraint          Patterns: "duplicate key", "unique constraint"
//	DB003 - Foreign key                Patterns: "foreign key"
//	DB004 - Connection refused         Patterns: "connection refused"
//	DB005 - Connection reset           Patterns: "connection reset"
//	DB006 - Timeout                    Patterns: "timeout"
//	DB007 - Deadlock / busy            Patterns: "deadlock", "database is locked"
//	DB008 - Storage failure            Patterns: "storage failure"
//	DB009 - Connection not found       Patterns: "connection not found"
//
// # Auth Errors (AUTH001-AUTH099)
//
//	AUTH001 - Unauthorized             Patterns: "unauthorized"
//	AUTH002 - Forbidden                Patterns: "forbidden"
//
// # Import Errors (IMP001-IMP099)
//
//	IMP001 - System busy               Patterns: "too many concurrent imports"
//	IMP002 - Batch too large           Patterns: "batch too large"
//	IMP003 - Empty batch               Patterns: "empty batch"
//	IMP004 - Invalid CSV               Patterns: "invalid csv"
//	IMP005 - Import cancelled          Patterns: "import cancelled", "context canceled"
//	IMP006 - Request timeout           Patterns: "context deadline exceeded"
//
// # Rate Limiting (RATE001)
//
//	RATE001 - Rate limited             Patterns: "rate limit"
//
// # Default Error (ERR000)
//
// Fallback when no specific pattern matches.
//
// # Pattern Matching
//
// Error patterns are matched case-insensitively using strings.Contains.
// The first matching pattern wins, so more specific patterns should be
// defined before general ones.

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error patterns (case-insensitive) to user messages.
// The first matching pattern wins, so order matters.
var errorPatterns = []errorPattern{
	// =========================================================================
	// Import Errors (IMP001-IMP006)
	// =========================================================================
	{
		pattern: "too many concurrent imports",
		msg: UserMessage{
			Message: "System is busy processing other imports",
			Action:  "Please wait a moment and try again",
			Code:    "IMP001",
		},
	},
	{
		pattern: "batch too large",
		msg: UserMessage{
			Message: "The batch exceeds the maximum number of rows",
			Action:  "Split the batch into smaller requests",
			Code:    "IMP002",
		},
	},
	{
		pattern: "empty batch",
		msg: UserMessage{
			Message: "The batch contains no rows",
			Action:  "Submit at least one row",
			Code:    "IMP003",
		},
	},
	{
		pattern: "invalid csv",
		msg: UserMessage{
			Message: "File is not a valid CSV",
			Action:  "Ensure the file is comma-separated with a header row",
			Code:    "IMP004",
		},
	},
	{
		pattern: "import cancelled",
		msg: UserMessage{
			Message: "Import was cancelled; committed chunks were kept",
			Action:  "Resubmit the batch; already imported rows will be updated in place",
			Code:    "IMP005",
		},
	},

	// =========================================================================
	// Auth Errors (AUTH001-AUTH002)
	// =========================================================================
	{
		pattern: "unauthorized",
		msg: UserMessage{
			Message: "Authentication is required",
			Action:  "Provide a valid bearer token",
			Code:    "AUTH001",
		},
	},
	{
		pattern: "forbidden",
		msg: UserMessage{
			Message: "Your role is not allowed to perform this operation",
			Action:  "Ask an administrator for write access",
			Code:    "AUTH002",
		},
	},

	// =========================================================================
	// Map Errors (MAP001-MAP002)
	// =========================================================================
	{
		pattern: "data found for",
		msg: UserMessage{
			Message: "No data exists for the requested year",
			Action:  "Pick one of the available years",
			Code:    "MAP001",
		},
	},
	{
		pattern: "invalid filter",
		msg: UserMessage{
			Message: "The map filter is not valid for this dataset",
			Action:  "Check the dataset's classes",
			Code:    "MAP002",
		},
	},

	// =========================================================================
	// Province Errors (PRV001-PRV002)
	// =========================================================================
	{
		pattern: "province not found",
		msg: UserMessage{
			Message: "Referenced province does not exist",
			Action:  "Use a province id, code or registered name",
			Code:    "PRV001",
		},
	},
	{
		pattern: "province reference",
		msg: UserMessage{
			Message: "Row does not reference a province",
			Action:  "Add a province, province_id or province_name value",
			Code:    "PRV002",
		},
	},

	// =========================================================================
	// Validation Errors (VAL001-VAL011)
	// =========================================================================
	{
		pattern: "unknown dataset",
		msg: UserMessage{
			Message: "Unknown dataset",
			Action:  "Use one of the datasets listed by /api/datasets",
			Code:    "VAL001",
		},
	},
	{
		pattern: "invalid number",
		msg: UserMessage{
			Message: "Invalid number format detected",
			Action:  "Use a plain decimal number",
			Code:    "VAL002",
		},
	},
	{
		pattern: "required field",
		msg: UserMessage{
			Message: "Required field is empty",
			Action:  "Ensure all required variables have values",
			Code:    "VAL003",
		},
	},
	{
		pattern: "out of range",
		msg: UserMessage{
			Message: "Value is outside the allowed range",
			Action:  "Check the variable's allowed range",
			Code:    "VAL004",
		},
	},
	{
		pattern: "self-connection",
		msg: UserMessage{
			Message: "A province cannot connect to itself",
			Action:  "Use different source and target provinces",
			Code:    "VAL005",
		},
	},
	{
		pattern: "must be one of",
		msg: UserMessage{
			Message: "Value is not in the allowed list",
			Action:  "Check the allowed values for this field",
			Code:    "VAL006",
		},
	},
	{
		pattern: "invalid year",
		msg: UserMessage{
			Message: "Invalid year",
			Action:  "Use a four-digit year",
			Code:    "VAL007",
		},
	},
	{
		pattern: "invalid month",
		msg: UserMessage{
			Message: "Invalid month",
			Action:  "Use a month number from 1 to 12",
			Code:    "VAL007",
		},
	},
	{
		pattern: "missing required column",
		msg: UserMessage{
			Message: "Required column is missing from CSV",
			Action:  "Check that all required columns are present in your file",
			Code:    "VAL008",
		},
	},
	{
		pattern: "invalid geojson",
		msg: UserMessage{
			Message: "File is not a GeoJSON FeatureCollection",
			Action:  "Export province boundaries as a FeatureCollection",
			Code:    "VAL009",
		},
	},
	{
		pattern: "invalid direction",
		msg: UserMessage{
			Message: "Unknown connection direction",
			Action:  "Use out, in or both",
			Code:    "VAL010",
		},
	},
	{
		pattern: "invalid json",
		msg: UserMessage{
			Message: "Request body is not valid JSON",
			Action:  "Send a JSON object, or an array of rows for bulk calls",
			Code:    "VAL011",
		},
	},
	{
		pattern: "request body too large",
		msg: UserMessage{
			Message: "Request body exceeds the size limit",
			Action:  "Split the upload into smaller batches",
			Code:    "VAL011",
		},
	},

	// =========================================================================
	// Database Errors (DB001-DB009)
	// =========================================================================
	{
		pattern: "connection not found",
		msg: UserMessage{
			Message: "Connection does not exist",
			Action:  "Verify the connection id",
			Code:    "DB009",
		},
	},
	{
		pattern: "already exists",
		msg: UserMessage{
			Message: "A record with this natural key already exists",
			Action:  "Use bulk import to update existing records",
			Code:    "DB001",
		},
	},
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "This value must be unique but already exists",
			Action:  "Check for duplicate entries in your data",
			Code:    "DB002",
		},
	},
	{
		pattern: "unique constraint",
		msg: UserMessage{
			Message: "This value must be unique but already exists",
			Action:  "Check for duplicate entries in your data",
			Code:    "DB002",
		},
	},
	{
		pattern: "foreign key",
		msg: UserMessage{
			Message: "Referenced record does not exist",
			Action:  "Ensure provinces are seeded first",
			Code:    "DB003",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB004",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Please try again",
			Code:    "DB005",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "IMP005",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Submit a smaller batch or try again later",
			Code:    "IMP006",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Submit a smaller batch or try again later",
			Code:    "DB006",
		},
	},
	{
		pattern: "deadlock",
		msg: UserMessage{
			Message: "Database was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "DB007",
		},
	},
	{
		pattern: "database is locked",
		msg: UserMessage{
			Message: "Database was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "DB007",
		},
	},
	{
		pattern: "storage failure",
		msg: UserMessage{
			Message: "The database could not complete the operation",
			Action:  "Please try again or contact support",
			Code:    "DB008",
		},
	},

	// =========================================================================
	// Rate Limiting (RATE001)
	// =========================================================================
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

// defaultMessage is returned when no pattern matches (ERR000).
// Support staff should check application logs for the original technical error.
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// It searches through known error patterns (case-insensitive) and returns
// the first match. If no pattern matches, a generic fallback message with
// code ERR000 is returned.
//
// Example:
//
//	err := &NotFoundError{Entity: "province", Ref: "Atlantis"}
//	msg := MapError(err)
//	// msg.Code == "PRV001"
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

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing checks if an error matches a known pattern and should be shown to users.
// Returns true if the error matches a specific pattern (not the generic ERR000 fallback).
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	msg := MapError(err)
	return msg.Code != defaultMessage.Code
}
