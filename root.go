package traverse

// RootFactory computes the application's root resource for a request.
type RootFactory func(req *Request) (any, error)

// DefaultRoot is the root resource of applications that do not configure
// a root factory. It has no name and no parent.
type DefaultRoot struct {
	Name   string
	Parent any
}

// DefaultRootFactory returns an empty *DefaultRoot.
func DefaultRootFactory(*Request) (any, error) {
	return &DefaultRoot{}, nil
}
