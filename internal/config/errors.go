package config

import "github.com/kanbo-app/kanbo/internal/apperr"

var errInvalidInterval = &apperr.Error{
	Message: "config intervals must be positive durations",
}
