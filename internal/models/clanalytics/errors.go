package clanalytics

import (
	"errors"
	"fmt"
)

var (
	ErrPageViewNotFound  = errors.New("page view introuvable")
	ErrInvalidExportType = errors.New("type d'export invalide")
)

// ValidationError signale une entrée invalide, à ne pas rejouer telle quelle
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func missing(field string) error {
	return &ValidationError{Field: field, Reason: "champ requis"}
}

// IsValidation indique si err est une erreur de validation
func IsValidation(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}
