// errno.go - error taxonomy and composite-result -> errno mapping

package main

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// KernelError carries operation/detail/cause context the way the teacher's
// video subsystem error type does, adapted to the kernel's own boundary.
type KernelError struct {
	Operation string
	Details   string
	Err       error
}

func (e *KernelError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s failed: %s: %v", e.Operation, e.Details, e.Err)
	}
	return fmt.Sprintf("%s failed: %s", e.Operation, e.Details)
}

func (e *KernelError) Unwrap() error { return e.Err }

func newKernelError(op, details string, cause error) *KernelError {
	return &KernelError{Operation: op, Details: details, Err: cause}
}

// errQueueFull is returned internally when a ring queue cannot accept a
// batch of bytes atomically (§4.1 opost, §4.1 write state machine); callers
// retry rather than propagate it to the user.
var errQueueFull = newKernelError("enqueue", "queue full", nil)

// restartSysError is the kernel-internal analogue of ERESTARTSYS: a sleep
// was interrupted by a pending signal. TTY Read and Write return it to
// their caller unchanged; the SCSI ioctl paths translate it to EINTR
// through ioctlErrno (§5 "Suspension points").
type restartSysError struct{}

func (restartSysError) Error() string { return "interrupted system call (would restart)" }

// errRestartSys is the actual sentinel tested with errors.Is.
var errRestartSys = restartSysError{}

// SCSI host-error byte (see Cmd.Result §3) — these mirror the historical
// DID_* codes from the SCSI mid-layer driver model.
type HostError uint8

const (
	DidOK HostError = iota
	DidNoConnect
	DidBusBusy
	DidTimeOut
	DidBadTarget
	DidAbort
	DidParity
	DidError
	DidReset
	DidBadIntr
	DidNoMedium // removable device found no medium present, no hardware access attempted (sd.c check_scsidisk_media_change / the changed-bit gate in sd_init_command)
)

// DriverSuggestion is the one-byte driver-suggestion field of Cmd.Result.
type DriverSuggestion uint8

const (
	SuggestOK DriverSuggestion = iota
	SuggestRetry
	SuggestAbort
	SuggestRemap
	SuggestDie
	SuggestSense
)

// ScsiResult is the four-field composite result described in §3/§7:
// device status | device message, plus host error and driver suggestion.
type ScsiResult struct {
	Status  uint8
	Message uint8
	Host    HostError
	Driver  DriverSuggestion
}

func (r ScsiResult) OK() bool {
	return r.Host == DidOK && (r.Status == StatusGood || r.Status == StatusIntermediate || r.Status == StatusConditionMet)
}

// errnoFromScsi derives a POSIX-style errno from a composite result, for
// callers at the block/character-layer boundary (§7 "Propagation").
func errnoFromScsi(r ScsiResult) error {
	if r.OK() {
		return nil
	}
	switch r.Host {
	case DidNoMedium:
		return unix.ENOMEDIUM
	case DidBadTarget:
		return unix.ENODEV
	case DidTimeOut:
		return unix.EIO
	case DidNoConnect, DidBusBusy, DidParity, DidReset, DidAbort, DidError, DidBadIntr:
		return unix.EIO
	}
	switch r.Status {
	case StatusCheckCondition:
		return unix.EIO
	case StatusBusy, StatusReservationConflict:
		return unix.EBUSY
	}
	return unix.EIO
}

// ioctlErrno folds the errRestartSys -> EINTR boundary rule (§5) into an
// otherwise-passthrough error, for the SCSI ioctl and sg command return
// paths.
func ioctlErrno(err error) error {
	if err == errRestartSys {
		return unix.EINTR
	}
	return err
}
