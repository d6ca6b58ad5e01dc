package content

import "fmt"

// Issue is one collected validation finding, located by a JSON-ish path.
type Issue struct {
	Code    string `json:"code"`
	Path    string `json:"path"`
	Message string `json:"message"`
}

// Validation collects errors and warnings for one import attempt.
type Validation struct {
	Errors   []Issue `json:"errors"`
	Warnings []Issue `json:"warnings"`
}

// ImportResult is the outcome of an import. Success is false only when the
// payload could not be decoded at all; block-level findings keep Success
// true with populated Errors.
type ImportResult struct {
	Success    bool       `json:"success"`
	Validation Validation `json:"validation"`
}

// Validation issue codes.
const (
	CodeSchemaDecode      = "SCHEMA_DECODE"
	CodeUnknownBlockType  = "UNKNOWN_BLOCK_TYPE"
	CodeUnknownVariable   = "UNKNOWN_VARIABLE"
	CodeDuplicateRoleID   = "DUPLICATE_ROLE_ID"
	CodeDuplicateOrder    = "DUPLICATE_ROLE_ORDER"
	CodeInvalidRoleOrder  = "INVALID_ROLE_ORDER"
	CodeEmptyRoleLabel    = "EMPTY_ROLE_LABEL"
	CodeInvalidOrderMode  = "INVALID_ORDER_MODE"
	CodeInvalidScope      = "INVALID_NOTIFY_SCOPE"
	CodeSequentialTrigger = "SEQUENTIAL_ONLY_TRIGGER"
	CodeUnknownRoleRef    = "UNKNOWN_ROLE_REFERENCE"
	CodeNoSignerRoles     = "NO_SIGNER_ROLES"
)

func (v *Validation) addError(code, path, format string, args ...any) {
	v.Errors = append(v.Errors, Issue{Code: code, Path: path, Message: fmt.Sprintf(format, args...)})
}

func (v *Validation) addWarning(code, path, format string, args ...any) {
	v.Warnings = append(v.Warnings, Issue{Code: code, Path: path, Message: fmt.Sprintf(format, args...)})
}

// normalized returns the validation with nil slices replaced by empty ones
// so JSON consumers always see arrays.
func (v Validation) normalized() Validation {
	if v.Errors == nil {
		v.Errors = []Issue{}
	}
	if v.Warnings == nil {
		v.Warnings = []Issue{}
	}
	return v
}
