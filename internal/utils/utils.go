package utils

import "fmt"

// Safely runs f, reporting a panic as an error. Errors are prefixed with name.
func Safely(name string, f func() error) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("%s panicked: %v", name, recovered)
		}
	}()

	if err = f(); err != nil {
		return fmt.Errorf("%s failed: %w", name, err)
	}
	return nil
}
