// Package config decodes the raw, loosely typed settings of a flow item into a
// typed node configuration: struct defaults first, then the item values, then validation.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
)

var (
	// ErrUnimplemented marks a configuration option the engine recognizes but does not support.
	ErrUnimplemented = errors.New("unimplemented")

	// ErrInvalidConfig is returned when a configuration fails decoding or validation.
	ErrInvalidConfig = errors.New("invalid configuration")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Unimplemented reports an unsupported option.
func Unimplemented(option string) error {
	return fmt.Errorf("%w: %s", ErrUnimplemented, option)
}

// Decode fills out, a pointer to a struct, from raw. Field names come from the
// mapstructure tags; Node-RED stores most numbers and booleans as strings, so
// decoding is weakly typed.
func Decode(raw map[string]any, out any) error {
	if err := defaults.Set(out); err != nil {
		return fmt.Errorf("%w: failed to apply defaults: %w", ErrInvalidConfig, err)
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return err
	}

	if err := decoder.Decode(raw); err != nil {
		slog.Debug("Node config: decode failed",
			"config_type", reflect.TypeOf(out).String(),
			"error", err)

		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if err := validate.Struct(out); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
			first := validationErrors[0]

			return fmt.Errorf("%w: field %s failed %q", ErrInvalidConfig, first.Namespace(), first.Tag())
		}

		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return nil
}
