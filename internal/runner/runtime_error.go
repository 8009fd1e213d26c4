package runner

import "fmt"

// RuntimeError is an input failure that skips a pass without stopping the loop.
type RuntimeError struct {
	Op   string
	Path string
	Err  error
}

func (e *RuntimeError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}

func inputError(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &RuntimeError{Op: op, Path: path, Err: err}
}
