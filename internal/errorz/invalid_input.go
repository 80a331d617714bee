package errorz

import "strings"

// InvalidInput signals that a provided input is invalid due to the wrapped errors.
type InvalidInput []error

func (e InvalidInput) Error() string {
	var b strings.Builder
	b.WriteString("invalid input:\n")
	for _, err := range e {
		b.WriteString(err.Error())
		b.WriteString("\n")
	}
	return b.String()
}

func (e InvalidInput) Unwrap() []error {
	return e
}

// Add appends a keyed error.
func (e *InvalidInput) Add(key string, err error) {
	*e = append(*e, Keyed{Key: key, Err: err})
}

// OrNil returns nil when no errors were collected, so callers can
// return the result directly.
func (e InvalidInput) OrNil() error {
	if len(e) == 0 {
		return nil
	}
	return e
}
