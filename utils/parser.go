package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mohamed3773/MyCProject-sub000/types"
)

var validate *validator.Validate

func init() {
	validate = validator.New()

	// Register custom validators
	_ = validate.RegisterValidation("network", validateNetworkTag)
	_ = validate.RegisterValidation("txhash", validateTxHashTag)
	_ = validate.RegisterValidation("amount", validateAmountTag)
}

// Validator exposes the shared validator instance.
func Validator() *validator.Validate {
	return validate
}

// ValidateStruct runs the struct-tag validation and reports failures as a
// validation MarketError listing every offending field.
func ValidateStruct(v interface{}) error {
	if err := validate.Struct(v); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			msgs := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return &types.MarketError{
				Code:    types.ErrCodeValidation,
				Step:    types.StepQuote,
				Message: "validation failed: " + strings.Join(msgs, "; "),
			}
		}
		return &types.MarketError{
			Code:    types.ErrCodeValidation,
			Step:    types.StepQuote,
			Message: fmt.Sprintf("validation failed: %v", err),
		}
	}
	return nil
}

// DecodeAndValidate parses a JSON body into v, rejecting unknown fields, and
// validates it using struct tags.
func DecodeAndValidate(r io.Reader, v interface{}) error {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &types.MarketError{
			Code:    types.ErrCodeValidation,
			Step:    types.StepQuote,
			Message: fmt.Sprintf("failed to parse request: %v", err),
		}
	}
	return ValidateStruct(v)
}

// Custom validator functions
func validateNetworkTag(fl validator.FieldLevel) bool {
	_, ok := types.ParseNetwork(fl.Field().String())
	return ok
}

func validateTxHashTag(fl validator.FieldLevel) bool {
	return ValidateTransactionHash(fl.Field().String()) == nil
}

func validateAmountTag(fl validator.FieldLevel) bool {
	_, err := ValidateAmount(fl.Field().String())
	return err == nil
}
