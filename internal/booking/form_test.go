package booking

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
)

func TestNewValidatorRegistersCustomTags(t *testing.T) {
	assert.NotPanics(t, func() { newValidator() })
}

func TestMustRegisterPanicsOnBadTag(t *testing.T) {
	assert.Panics(t, func() {
		mustRegister(validator.New(), "", func(validator.FieldLevel) bool { return true })
	})
}
