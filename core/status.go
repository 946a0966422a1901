package core

import "errors"

// Errors returned by the SPIM and ADC entry points. Callers compare with
// errors.Is; StatusOf maps them onto the numeric codes used on the wire.
var (
	// ErrInvalidParameter reports a malformed request. It is always detected
	// before any register or bus access.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrBusy reports that another transfer holds the controller.
	ErrBusy = errors.New("controller busy")

	// ErrChannel reports an ADC channel the platform does not provide.
	ErrChannel = errors.New("invalid ADC channel")

	// ErrTransfer reports a fault raised by the hardware while a transaction
	// was in progress.
	ErrTransfer = errors.New("transfer error")

	// ErrNotInitialized reports use of a peripheral before Init.
	ErrNotInitialized = errors.New("peripheral not initialized")
)

// TransferError carries the underlying cause of a hardware fault.
// errors.Is(err, ErrTransfer) holds for every TransferError.
type TransferError struct {
	Err error
}

func (e *TransferError) Error() string {
	if e.Err == nil {
		return ErrTransfer.Error()
	}
	return ErrTransfer.Error() + ": " + e.Err.Error()
}

func (e *TransferError) Unwrap() error { return e.Err }

func (e *TransferError) Is(target error) bool { return target == ErrTransfer }

// Status is the numeric result code reported by the diagnostic console.
type Status int32

const (
	StatusOK               Status = 0
	StatusError            Status = -1
	StatusChannelError     Status = -2
	StatusInvalidParameter Status = -3
	StatusBusy             Status = -4
)

// StatusOf maps an error returned by this package to its status code.
func StatusOf(err error) Status {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, ErrInvalidParameter):
		return StatusInvalidParameter
	case errors.Is(err, ErrBusy):
		return StatusBusy
	case errors.Is(err, ErrChannel):
		return StatusChannelError
	default:
		return StatusError
	}
}

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusError:
		return "error"
	case StatusChannelError:
		return "channel error"
	case StatusInvalidParameter:
		return "invalid parameter"
	case StatusBusy:
		return "busy"
	}
	return "status(" + itoa(int(s)) + ")"
}

// Err is the inverse of StatusOf. StatusError carries no cause, so it maps
// to ErrTransfer.
func (s Status) Err() error {
	switch s {
	case StatusOK:
		return nil
	case StatusInvalidParameter:
		return ErrInvalidParameter
	case StatusBusy:
		return ErrBusy
	case StatusChannelError:
		return ErrChannel
	}
	return ErrTransfer
}
