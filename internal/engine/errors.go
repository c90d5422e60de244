package engine

import "fmt"

type AppError struct {
	Code    string `json:"code"`
	Status  int    `json:"-"`
	Message string `json:"message"`
}

func (e *AppError) Error() string {
	return e.Message
}

type ErrorResponse struct {
	Error *AppError `json:"error"`
}

func NewAppError(code string, status int, msg string) *AppError {
	return &AppError{Code: code, Status: status, Message: msg}
}

// FieldError is a per-field validation failure from the query engine.
// Recoverable: the resource is still returned with its error populated.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func UnknownTableError(name string) *AppError {
	return &AppError{Code: "UNKNOWN_TABLE", Status: 404, Message: fmt.Sprintf("Unknown table: %s", name)}
}

func InvalidTokenError() *AppError {
	return &AppError{Code: "INVALID_TOKEN", Status: 400, Message: "Invalid table token"}
}

func ExpiredTokenError() *AppError {
	return &AppError{Code: "EXPIRED_TOKEN", Status: 401, Message: "Table token has expired"}
}

func ActionNotFoundError(name string) *AppError {
	return &AppError{Code: "ACTION_NOT_FOUND", Status: 404, Message: fmt.Sprintf("Unknown action: %s", name)}
}

func ExportNotFoundError(name string) *AppError {
	return &AppError{Code: "EXPORT_NOT_FOUND", Status: 404, Message: fmt.Sprintf("Unknown export: %s", name)}
}

func ForbiddenError(msg string) *AppError {
	return &AppError{Code: "FORBIDDEN", Status: 403, Message: msg}
}

func UnauthorizedError(msg string) *AppError {
	return &AppError{Code: "UNAUTHORIZED", Status: 401, Message: msg}
}

func NotFoundError(tableName, id string) *AppError {
	return &AppError{Code: "NOT_FOUND", Status: 404, Message: fmt.Sprintf("%s record %s not found", tableName, id)}
}

func ActionDisabledError(name string) *AppError {
	return &AppError{Code: "ACTION_DISABLED", Status: 422, Message: fmt.Sprintf("Action %s is disabled for this record", name)}
}

func HandlerFailedError(msg string) *AppError {
	if msg == "" {
		msg = "Action failed"
	}
	return &AppError{Code: "HANDLER_FAILED", Status: 422, Message: msg}
}

func InvalidSelectionError(msg string) *AppError {
	return &AppError{Code: "INVALID_SELECTION", Status: 400, Message: msg}
}

func InvalidParamsError(msg string) *AppError {
	return &AppError{Code: "INVALID_PARAMS", Status: 400, Message: msg}
}
