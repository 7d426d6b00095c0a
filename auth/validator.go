package auth

import (
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// identityClaims is what a token must carry to sign a user in.
type identityClaims struct {
	Subject string `validate:"required,max=128,excludesall=./"`
	Name    string `validate:"required,max=100"`
	Picture string `validate:"omitempty,url"`
}

func validateClaims(claims *CustomClaims) error {
	return validate.Struct(identityClaims{
		Subject: claims.Subject,
		Name:    claims.Name,
		Picture: claims.Picture,
	})
}
