package coordinator

import (
	"errors"

	"github.com/kanbo-app/kanbo/internal/apperr"
)

var (
	errFailedToStart = &apperr.Error{
		Message: "Failed to start timer",
	}

	errFailedToStop = &apperr.Error{
		Message: "Failed to stop timer",
	}

	errFailedToRecover = &apperr.Error{
		Message: "Failed to recover timer state",
	}

	errKeeperTimeout = errors.New("timekeeper did not respond in time")
)
