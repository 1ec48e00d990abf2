package auth

import (
	"regexp"
	"strings"

	"forumcore/internal/models"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

func validateRegistration(username, email, password string) error {
	if err := validateUsername(username); err != nil {
		return err
	}
	if err := validateEmail(email); err != nil {
		return err
	}
	return validatePassword(password)
}

func validateUsername(username string) error {
	switch {
	case username == "":
		return models.Invalid("username", "username is required")
	case len(username) < 3:
		return models.Invalid("username", "username must be at least 3 characters")
	case len(username) > 50:
		return models.Invalid("username", "username must be at most 50 characters")
	case !usernamePattern.MatchString(username):
		return models.Invalid("username", "username may only contain letters, digits, underscore and hyphen")
	}
	return nil
}

func validateEmail(email string) error {
	switch {
	case email == "":
		return models.Invalid("email", "email is required")
	case len(email) > 255:
		return models.Invalid("email", "email must be at most 255 characters")
	case !strings.Contains(email, "@"):
		return models.Invalid("email", "email must contain @")
	}
	return nil
}

func validatePassword(password string) error {
	switch {
	case password == "":
		return models.Invalid("password", "password is required")
	case len(password) < 6:
		return models.Invalid("password", "password must be at least 6 characters")
	case len(password) > 128:
		return models.Invalid("password", "password must be at most 128 characters")
	}
	return nil
}
