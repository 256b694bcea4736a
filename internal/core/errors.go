package core

import "errors"

var (
	ErrValidation      = errors.New("invalid request")
	ErrFileTooLarge    = errors.New("file too large")
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrMerge           = errors.New("failed to merge documents")
	ErrConflict        = errors.New("already exists")
	ErrPrinterFailed   = errors.New("printer failed")
)
