package errorz

// Keyed ties an error to the input field it concerns.
type Keyed struct {
	Key string
	Err error
}

func (k Keyed) Error() string {
	return k.Key + ": " + k.Err.Error()
}

func (k Keyed) Unwrap() error {
	return k.Err
}

// Missing returns an InvalidInput error for a single required field.
func Missing(key string) InvalidInput {
	return InvalidInput{Keyed{Key: key, Err: ErrMissingField}}
}
