package services

import (
	"roomsync/errors"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

type CreateRoomRequest struct {
	Name        string `validate:"required,max=100"`
	Description string `validate:"max=500"`
}

// ValidateCreateRoom maps tag failures onto the engine's validation errors.
func ValidateCreateRoom(req CreateRoomRequest) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) || len(fieldErrors) == 0 {
		return err
	}
	switch fe := fieldErrors[0]; {
	case fe.Field() == "Name" && fe.Tag() == "required":
		return errors.ErrEmptyRoomName
	case fe.Field() == "Name":
		return errors.ErrRoomNameTooLong
	default:
		return errors.ErrDescriptionTooLong
	}
}
