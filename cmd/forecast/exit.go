package main

import (
	"context"
	"errors"

	"github.com/kp-forecasting/forecast-client/common/clients"
)

// Exit codes by failure kind so scripts can branch without parsing output
const (
	exitOK              = 0
	exitError           = 1
	exitInvalidRequest  = 2
	exitJobFailed       = 3
	exitPollTimeout     = 4
	exitNotFound        = 5
	exitInvalidResponse = 6
	exitTransport       = 7
	exitCanceled        = 130
)

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	switch clients.KindOf(err) {
	case clients.KindInvalidRequest:
		return exitInvalidRequest
	case clients.KindJobFailed:
		return exitJobFailed
	case clients.KindPollTimeout:
		return exitPollTimeout
	case clients.KindNotFound:
		return exitNotFound
	case clients.KindInvalidResponse:
		return exitInvalidResponse
	case clients.KindTransport:
		return exitTransport
	}
	if errors.Is(err, context.Canceled) {
		return exitCanceled
	}
	return exitError
}
