package httpadapter

import (
	"net/http"

	"github.com/kirillkom/pdf-summarizer/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrValidation):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrInsufficientText):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
