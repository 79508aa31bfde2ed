package httputil

import (
	"strconv"

	"github.com/gin-gonic/gin"

	apperrors "github.com/allisson/apikeys/internal/errors"
)

// Pagination bounds for list endpoints such as /v1/tokens/:id/descendants.
const (
	DefaultPageLimit = 50
	MaxPageLimit     = 100
)

var (
	errInvalidOffset = apperrors.Wrap(apperrors.ErrInvalidInput,
		"invalid offset parameter: must be a non-negative integer")
	errInvalidLimit = apperrors.Wrapf(apperrors.ErrInvalidInput,
		"invalid limit parameter: must be between 1 and %d", MaxPageLimit)
)

// ParsePagination reads the offset and limit query parameters, defaulting to 0 and
// DefaultPageLimit. Errors wrap ErrInvalidInput.
func ParsePagination(c *gin.Context) (offset, limit int, err error) {
	offset, err = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		return 0, 0, errInvalidOffset
	}

	limit, err = strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(DefaultPageLimit)))
	if err != nil || limit < 1 || limit > MaxPageLimit {
		return 0, 0, errInvalidLimit
	}

	return offset, limit, nil
}

// Paginate returns the window of items selected by offset and limit.
func Paginate[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return []T{}
	}
	return items[offset:min(offset+limit, len(items))]
}
