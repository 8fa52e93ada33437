package couchview

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for programmatic handling via errors.Is. View operations
// wrap them in *ViewError.
var (
	ErrNotFound      = errors.New("view not found")
	ErrNotRegistered = errors.New("view has no map function")
	ErrIndexCorrupt  = errors.New("view checkpoint unreadable")
	ErrInternal      = errors.New("internal error")

	ErrConflict         = errors.New("document update conflict")
	ErrDocumentNotFound = errors.New("document not found")
)

type DataError struct {
	Data []byte
	Off  int
	Err  error
	Msg  string
}

func dataErrf(data []byte, off int, err error, format string, args ...any) error {
	return &DataError{data, off, err, fmt.Sprintf(format, args...)}
}

func (e *DataError) Unwrap() error {
	return e.Err
}

func (e *DataError) Error() string {
	const prefixLen = 64
	const suffixLen = 32
	n := len(e.Data)
	if n <= prefixLen+suffixLen {
		if e.Err != nil {
			return fmt.Sprintf("%s: %v: (%d) %x", e.Msg, e.Err, n, e.Data)
		} else {
			return fmt.Sprintf("%s: (%d) %x", e.Msg, n, e.Data)
		}
	} else {
		p, s := e.Data[:prefixLen], e.Data[n-suffixLen:]
		if e.Err != nil {
			return fmt.Sprintf("%s: %v: (%d) %x...%x", e.Msg, e.Err, n, p, s)
		} else {
			return fmt.Sprintf("%s: (%d) %x...%x", e.Msg, n, p, s)
		}
	}
}

// ViewError reports a failed view operation. Kind is one of the sentinel
// errors above; Err is the underlying cause, if any.
type ViewError struct {
	View string
	Op   string
	Seq  uint64
	Kind error
	Err  error
}

func viewErrf(view, op string, kind error, err error) error {
	return &ViewError{View: view, Op: op, Kind: kind, Err: err}
}

func (e *ViewError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func (e *ViewError) Error() string {
	var buf strings.Builder
	buf.WriteString(e.View)
	if e.Op != "" {
		buf.WriteByte('.')
		buf.WriteString(e.Op)
	}
	if e.Seq != 0 {
		fmt.Fprintf(&buf, "@%d", e.Seq)
	}
	buf.WriteString(": ")
	buf.WriteString(e.Kind.Error())
	if e.Err != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Err.Error())
	}
	return buf.String()
}

// internalErr classifies err as ErrInternal unless it already carries one of
// the view sentinels.
func internalErr(view, op string, err error) error {
	var ve *ViewError
	if errors.As(err, &ve) {
		return err
	}
	return viewErrf(view, op, ErrInternal, err)
}
