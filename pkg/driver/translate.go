package driver

import (
	"strings"

	"github.com/nexepic/metrix-studio/pkg/native"
)

// Fallback texts used when the engine gives nothing useful.
const (
	MsgNullNativeError  = "Database file not found or access denied"
	MsgEmptyNativeError = "An unknown error occurred while validating the database."
	MsgUnknownExecution = "Unknown database execution error"
)

// LastNativeError reads the engine's last error and turns it into non-empty
// text. See TranslateNativeError for the rules.
func LastNativeError(engine native.Engine) string {
	return TranslateNativeError(engine.LastError())
}

// TranslateNativeError maps a possibly-null, possibly-empty native error
// string to caller-facing text:
//   - null pointer (ok == false): MsgNullNativeError
//   - empty or whitespace-only: MsgEmptyNativeError
//   - anything else: msg verbatim
func TranslateNativeError(msg string, ok bool) string {
	if !ok {
		return MsgNullNativeError
	}
	if strings.TrimSpace(msg) == "" {
		return MsgEmptyNativeError
	}
	return msg
}
