// Package validator configures go-playground/validator for request binding.
package validator

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var (
	roleIDPattern  = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)
	hexDataPattern = regexp.MustCompile(`^0x([0-9a-fA-F]{2})+$`)
)

// New returns a validator with the custom tags registered.
func New() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := Register(v); err != nil {
		panic(err)
	}
	return v
}

// Register adds role_id and hexdata and reports fields by their json or
// form name.
func Register(v *validator.Validate) error {
	v.RegisterTagNameFunc(fieldName)
	if err := v.RegisterValidation("role_id", func(fl validator.FieldLevel) bool {
		return roleIDPattern.MatchString(fl.Field().String())
	}); err != nil {
		return fmt.Errorf("register role_id: %w", err)
	}
	if err := v.RegisterValidation("hexdata", func(fl validator.FieldLevel) bool {
		return hexDataPattern.MatchString(fl.Field().String())
	}); err != nil {
		return fmt.Errorf("register hexdata: %w", err)
	}
	return nil
}

// RegisterGin installs the custom tags on gin's binding validator.
func RegisterGin() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("gin binding engine is not go-playground/validator")
	}
	return Register(v)
}

func fieldName(f reflect.StructField) string {
	for _, tag := range []string{"json", "form"} {
		name := strings.SplitN(f.Tag.Get(tag), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name != "" {
			return name
		}
	}
	return f.Name
}

// Describe turns binding errors into a message fit for the client.
func Describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describeField(fe))
	}
	return strings.Join(msgs, "; ")
}

func describeField(fe validator.FieldError) string {
	name := fe.Field()
	switch fe.Tag() {
	case "required":
		return name + " is required"
	case "eth_addr":
		return name + " must be a 0x-prefixed 20 byte address"
	case "role_id":
		return name + " must be a 0x-prefixed 32 byte role id"
	case "hexdata":
		return name + " must be 0x-prefixed hex bytes"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", name, fe.Param())
	case "numeric":
		return name + " must be a number"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", name, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", name, fe.Tag())
	}
}
