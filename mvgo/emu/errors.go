package emu

import (
	"errors"
	"fmt"
)

// Execution faults. All are fatal to the current execution; the outer loop
// surfaces the first failure without attempting recovery.
var (
	ErrHaltWithNonZeroExitCode = errors.New("halted with non-zero exit code")
	ErrInvalidMemoryAccess     = errors.New("invalid memory access")
	ErrUnsupportedSyscall      = errors.New("unsupported syscall")
	ErrUnsupportedInstruction  = errors.New("unsupported instruction")
	ErrBreakpoint              = errors.New("breakpoint")
	ErrExceededCycleLimit      = errors.New("exceeded cycle limit")
	ErrInvalidSyscallUsage     = errors.New("syscall not allowed in unconstrained mode")
	ErrUnimplemented           = errors.New("unimplemented")
	ErrEndInUnconstrained      = errors.New("program ended while in unconstrained mode")
)

func haltErr(code uint32) error {
	return fmt.Errorf("%w: %d", ErrHaltWithNonZeroExitCode, code)
}

func unsupportedSyscallErr(id uint32) error {
	return fmt.Errorf("%w: %#x", ErrUnsupportedSyscall, id)
}

func unsupportedInstructionErr(raw uint32, pc uint32) error {
	return fmt.Errorf("%w: %#08x at pc %#x", ErrUnsupportedInstruction, raw, pc)
}

func cycleLimitErr(max uint64) error {
	return fmt.Errorf("%w: %d", ErrExceededCycleLimit, max)
}

func invalidSyscallUsageErr(id uint32) error {
	return fmt.Errorf("%w: %#x", ErrInvalidSyscallUsage, id)
}
