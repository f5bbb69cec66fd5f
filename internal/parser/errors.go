package parser

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedFileType is matched by UnsupportedFileTypeError.
	ErrUnsupportedFileType = errors.New("unsupported file type")
	// ErrParse is matched by ParseError.
	ErrParse = errors.New("parse failed")
)

// UnsupportedFileTypeError carries the extension that no parser handles.
type UnsupportedFileTypeError struct {
	Ext string
}

func (e *UnsupportedFileTypeError) Error() string {
	if e.Ext == "" {
		return "unsupported file type: no extension"
	}
	return fmt.Sprintf("unsupported file type: %s", e.Ext)
}

// Is reports whether target is ErrUnsupportedFileType.
func (e *UnsupportedFileTypeError) Is(target error) bool {
	return target == ErrUnsupportedFileType
}

// ParseError wraps a read or extraction failure for one source.
type ParseError struct {
	Source string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Is reports whether target is ErrParse.
func (e *ParseError) Is(target error) bool {
	return target == ErrParse
}
