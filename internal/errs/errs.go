// Package errs classifies failures into the kinds a front end reports
// differently: transport problems, site layout changes and local file trouble.
package errs

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
)

type Kind int

const (
	KindOther Kind = iota
	KindConnection
	KindTimeout
	KindStructure
	KindLocalIO
)

func (k Kind) String() string {
	switch k {
	case KindConnection:
		return "connection"
	case KindTimeout:
		return "timeout"
	case KindStructure:
		return "site-structure"
	case KindLocalIO:
		return "local-io"
	default:
		return "other"
	}
}

// StructureError means the site no longer looks the way the adapter expects.
type StructureError struct {
	Shop    string
	Message string
}

func (e *StructureError) Error() string {
	return fmt.Sprintf("%s: %s", e.Shop, e.Message)
}

func Structure(shop, format string, args ...any) error {
	return &StructureError{Shop: shop, Message: fmt.Sprintf(format, args...)}
}

type LocalIOError struct {
	Path string
	Err  error
}

func (e *LocalIOError) Error() string {
	return fmt.Sprintf("no access to %q: %v", e.Path, e.Err)
}

func (e *LocalIOError) Unwrap() error { return e.Err }

func LocalIO(path string, err error) error {
	if err == nil {
		return nil
	}
	return &LocalIOError{Path: path, Err: err}
}

// transport is implemented by errors coming out of the fetcher after all
// attempts were spent.
type transport interface {
	Transport() bool
}

func Classify(err error) Kind {
	if err == nil {
		return KindOther
	}

	var se *StructureError
	if errors.As(err, &se) {
		return KindStructure
	}
	var le *LocalIOError
	if errors.As(err, &le) {
		return KindLocalIO
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return KindTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return KindTimeout
	}

	var te transport
	if errors.As(err, &te) && te.Transport() {
		return KindConnection
	}
	if errors.As(err, &ne) {
		return KindConnection
	}
	var pe *os.PathError
	if errors.As(err, &pe) {
		return KindLocalIO
	}
	return KindOther
}

func Hint(k Kind) string {
	switch k {
	case KindConnection, KindTimeout:
		return "Site connection failed. Try again later."
	case KindStructure:
		return "The site layout has most likely changed. Contact the maintainer."
	case KindLocalIO:
		return "Close the file if it is open in another program and try again."
	default:
		return ""
	}
}

// Describe renders err the way it is shown to the user.
func Describe(err error) string {
	k := Classify(err)
	if hint := Hint(k); hint != "" {
		return fmt.Sprintf("%s error: %v\n\n%s", k, err, hint)
	}
	return fmt.Sprintf("%s error: %v", k, err)
}
