package repository

import "errors"

// Sentinel errors for rows that callers expect may be absent.
var (
	ErrCanvasNotFound = errors.New("canvas not found")
	ErrNodeNotFound   = errors.New("node not found")
	ErrBatchNotFound  = errors.New("batch not found")
)
