package winc

import (
	"errors"
	"strconv"
)

// Status is the result code of a driver API call. A nil error stands for Ok;
// every other outcome is returned as a Status, which implements error.
type Status uint8

const (
	StatusOk Status = iota
	StatusNotOpen
	StatusInvalidArg
	StatusScanInProgress
	StatusNoBssInfo
	StatusBssFindEnd
	StatusConnectFail
	StatusDisconnectFail
	StatusRequestError
	StatusInvalidContext
	StatusRetryRequest
	StatusNoSpace
	StatusNotConnected
	StatusRfMacConfigNotValid
	StatusOperationNotSupported
)

func (s Status) String() string {
	switch s {
	case StatusOk:
		return "ok"
	case StatusNotOpen:
		return "not open"
	case StatusInvalidArg:
		return "invalid argument"
	case StatusScanInProgress:
		return "scan in progress"
	case StatusNoBssInfo:
		return "no bss info"
	case StatusBssFindEnd:
		return "bss find end"
	case StatusConnectFail:
		return "connect failed"
	case StatusDisconnectFail:
		return "disconnect failed"
	case StatusRequestError:
		return "request error"
	case StatusInvalidContext:
		return "invalid context"
	case StatusRetryRequest:
		return "retry request"
	case StatusNoSpace:
		return "no space"
	case StatusNotConnected:
		return "not connected"
	case StatusRfMacConfigNotValid:
		return "rf/mac config not valid"
	case StatusOperationNotSupported:
		return "operation not supported"
	}
	return "status(" + strconv.Itoa(int(s)) + ")"
}

func (s Status) Error() string { return "winc: " + s.String() }

// StatusOf maps err to a Status. nil maps to StatusOk and errors that do not
// wrap a Status map to StatusRequestError.
func StatusOf(err error) Status {
	if err == nil {
		return StatusOk
	}
	var s Status
	if errors.As(err, &s) {
		return s
	}
	return StatusRequestError
}

// IsRetry reports whether err asks the caller to poll again once the
// firmware has answered.
func IsRetry(err error) bool { return StatusOf(err) == StatusRetryRequest }
