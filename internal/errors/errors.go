// Package errors holds the shared error-wrapping helper. Domain sentinel
// values live next to the code that returns them; this package only carries
// the plumbing they share.
package errors

import "fmt"

// Wrapf annotates err with formatted context while keeping it matchable
// through errors.Is and errors.As. A nil err stays nil so call sites can
// wrap unconditionally.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}
