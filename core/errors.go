package core

import "errors"

// Error taxonomy. Every public operation validates ids first and fails with
// ErrRange before touching hardware.
var (
	ErrRange          = errors.New("peripheral id out of range")
	ErrConfigRejected = errors.New("configuration rejected by hardware")
	ErrNilArgument    = errors.New("required argument missing")
	ErrTimeout        = errors.New("peripheral did not respond")
	ErrMode           = errors.New("operation not valid for pin mode")
	ErrAlreadyBound   = errors.New("stream already bound")
	ErrNotRunning     = errors.New("adc not running")
	ErrNoInterrupt    = errors.New("pin declares no interrupt")
	ErrInitialized    = errors.New("already initialized")
	ErrBadDescriptor  = errors.New("inconsistent descriptor table")
	ErrLength         = errors.New("buffer lengths differ")
	ErrUnknownCommand = errors.New("unknown command")
	ErrMalformed      = errors.New("malformed command arguments")
)

// Wire status codes for the errors above.
const (
	StatusOK uint8 = iota
	StatusRange
	StatusRejected
	StatusNilArgument
	StatusTimeout
	StatusMode
	StatusAlreadyBound
	StatusNotRunning
	StatusNoInterrupt
	StatusInitialized
	StatusBadDescriptor
	StatusLength
	StatusUnknownCommand
	StatusMalformed
	StatusUnknown
)

var statusErrors = [...]error{
	StatusRange:          ErrRange,
	StatusRejected:       ErrConfigRejected,
	StatusNilArgument:    ErrNilArgument,
	StatusTimeout:        ErrTimeout,
	StatusMode:           ErrMode,
	StatusAlreadyBound:   ErrAlreadyBound,
	StatusNotRunning:     ErrNotRunning,
	StatusNoInterrupt:    ErrNoInterrupt,
	StatusInitialized:    ErrInitialized,
	StatusBadDescriptor:  ErrBadDescriptor,
	StatusLength:         ErrLength,
	StatusUnknownCommand: ErrUnknownCommand,
	StatusMalformed:      ErrMalformed,
}

// StatusOf maps an error to its wire status code.
func StatusOf(err error) uint8 {
	if err == nil {
		return StatusOK
	}
	for code, target := range statusErrors {
		if target != nil && errors.Is(err, target) {
			return uint8(code)
		}
	}
	return StatusUnknown
}

// ErrorOf maps a wire status code back to its sentinel error.
func ErrorOf(status uint8) error {
	if status == StatusOK {
		return nil
	}
	if int(status) < len(statusErrors) && statusErrors[status] != nil {
		return statusErrors[status]
	}
	return errors.New("peripheral error " + utoa(uint32(status)))
}

// PinError records which pin a GPIO configuration failure belongs to.
type PinError struct {
	Pin PinID
	Err error
}

func (e *PinError) Error() string {
	return "pin " + itoa(int(e.Pin)) + ": " + e.Err.Error()
}

func (e *PinError) Unwrap() error { return e.Err }

// NoID marks a SubsystemError that applies to the whole subsystem.
const NoID = 0xFF

// SubsystemError names the subsystem (and instance) whose initialization failed.
type SubsystemError struct {
	Subsystem string
	ID        uint8
	Err       error
}

func (e *SubsystemError) Error() string {
	if e.ID == NoID {
		return e.Subsystem + ": " + e.Err.Error()
	}
	return e.Subsystem + " " + itoa(int(e.ID)) + ": " + e.Err.Error()
}

func (e *SubsystemError) Unwrap() error { return e.Err }
