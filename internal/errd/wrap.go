// Package errd implements deferred error wrapping.
package errd

import (
	"golang.org/x/xerrors"
)

// Wrap wraps the pointed-to error with f if it is non nil.
// Intended for use with defer and a named error return:
//
//	defer errd.Wrap(&err, "failed to dial")
func Wrap(err *error, f string, v ...interface{}) {
	if *err == nil {
		return
	}
	*err = xerrors.Errorf(f+": %w", append(v, *err)...)
}
