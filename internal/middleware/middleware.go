package middleware

import "net/http"

// Middleware is the usual http.Handler wrapper signature, so request
// concerns like logging and connection scoping compose into a chain.
type Middleware func(http.Handler) http.Handler

// CreateStack composes the given middleware into one. The first middleware
// in the argument list becomes the outermost wrapper, i.e. it runs first on
// the way in and last on the way out.
func CreateStack(xs ...Middleware) Middleware {
	return func(next http.Handler) http.Handler {
		for i := len(xs) - 1; i >= 0; i-- {
			next = xs[i](next)
		}
		return next
	}
}
