package exceptions

import (
	"errors"

	"github.com/hashicorp/go-multierror"
)

// Errors joins the non-nil errors, returning nil if there are none and the
// error itself if there is exactly one.
func Errors(errs ...error) error {
	var result *multierror.Error
	for _, err := range errs {
		if err == nil {
			continue
		}
		result = multierror.Append(result, err)
	}
	if result == nil {
		return nil
	}
	if len(result.Errors) == 1 {
		return result.Errors[0]
	}
	return result
}

// IsMulti reports whether err, or any member of a joined error, matches one
// of targetList.
func IsMulti(err error, targetList ...error) bool {
	for _, target := range targetList {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
