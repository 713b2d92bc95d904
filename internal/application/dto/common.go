package dto

// ErrorResponse cuerpo de error HTTP. Code es estable (VALIDATION, NOT_FOUND, OFFLINE...);
// Message es para mostrar.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
