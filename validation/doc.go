// Package validation provides struct tag validation for streamkit
// configuration and HTTP request bodies, backed by go-playground/validator.
//
//	type PublishRequest struct {
//	    Event string `json:"event" validate:"max=64"`
//	    Data  string `json:"data" validate:"required"`
//	}
//	err := validation.Validate(req)
//
// Failures are returned as *errors.AppError with code INVALID_INPUT and a
// "fields" detail listing each offending field.
package validation
