package rebase

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/agentstation/rebase/pkg/errors"
	"github.com/agentstation/rebase/pkg/query"
)

// MaxEndpointLength is the longest endpoint the store accepts.
const MaxEndpointLength = 768

const forbiddenEndpointChars = ".#$[]"

// ValidateEndpoint reports whether endpoint can address a store location.
func ValidateEndpoint(endpoint string) error {
	switch {
	case endpoint == "":
		return errors.NewInvalidEndpointError(endpoint, "endpoint must be a non-empty string")
	case len(endpoint) > MaxEndpointLength:
		return errors.NewInvalidEndpointError(endpoint, fmt.Sprintf("endpoint is too long to be stored, it must be at most %d characters", MaxEndpointLength))
	case strings.ContainsAny(endpoint, forbiddenEndpointChars):
		return errors.NewInvalidEndpointError(endpoint, `paths can't contain ".", "#", "$", "[", or "]"`)
	}
	return nil
}

// validateContext requires a keyed value: a map, a struct, or a non-nil
// pointer to one.
func validateContext(ctx any) error {
	if ctx == nil {
		return errors.NewInvalidOptionsError("context", "a keyed value", nil)
	}
	v := reflect.ValueOf(ctx)
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return errors.NewInvalidOptionsError("context", "a non-nil pointer", ctx)
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Map && v.Kind() != reflect.Struct {
		return errors.NewInvalidOptionsError("context", "a keyed value", fmt.Sprintf("%T", ctx))
	}
	return nil
}

func validateState(ctx State, state string) error {
	if ctx == nil {
		return errors.NewInvalidOptionsError("context", "a state container", nil)
	}
	if err := validateContext(ctx); err != nil {
		return err
	}
	if state == "" {
		return errors.NewInvalidOptionsError("state", "a non-empty state field name", state)
	}
	return nil
}

func validateQueries(qs query.Set) error {
	if len(qs) == 0 {
		return nil
	}
	return qs.Validate()
}

func validateData(data any) error {
	if data == nil {
		return errors.NewInvalidOptionsError("data", "a value to store", nil)
	}
	return nil
}
