package serverutils

import (
	"fmt"
	"strings"

	"classlive-be/internal/apperr"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidateRequest runs struct-tag validation and folds failures into the
// ValidationError taxonomy so the error middleware can map them to 400.
func ValidateRequest(req interface{}) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return &apperr.ValidationError{Reason: err.Error()}
	}

	reasons := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		reasons = append(reasons, fmt.Sprintf("%s failed on '%s'", fe.Field(), fe.Tag()))
	}
	return &apperr.ValidationError{Reason: strings.Join(reasons, "; ")}
}
