package kernel

import (
	"fmt"

	"github.com/pkg/errors"
)

// assertf enforces an internal contract named in spec.md section 7 as an
// assertion failure — fatal by design, never a recoverable syscall error.
func (k *Kernel) assertf(cond bool, format string, args ...interface{}) {
	if cond {
		return
	}
	err := errors.Errorf(format, args...)
	k.log.WithError(err).Fatal("kernel assertion failed")
}

// fatalAllocErr reports an allocator failure, which spec.md section 7
// declares fatal inside the core.
func (k *Kernel) fatalAllocErr(what string) {
	err := errors.New(fmt.Sprintf("allocation failed: %s", what))
	k.log.WithError(err).Fatal("kernel allocator exhausted")
}
