package traverse

// ConfigurationError reports that the application is not set up in a way
// the requested operation can work with.
type ConfigurationError struct {
	Msg string
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	return "traverse: configuration error: " + e.Msg
}

// ErrNoApplication is returned when no registry can be found to bootstrap
// against. Compare with errors.Is.
var ErrNoApplication = &ConfigurationError{
	Msg: "no valid applications could be found, make sure one has been created before trying to activate it",
}
