package transport

// Middleware decorates a Translator. RequestID, InFlight, Recovery and
// Logging are the stock implementations.
type Middleware func(Translator) Translator

// Chain folds middlewares into one. The first argument ends up outermost,
// so Chain(a, b, c)(h) runs a, then b, then c around h.
func Chain(middlewares ...Middleware) Middleware {
	return func(h Translator) Translator {
		wrapped := h
		for i := range middlewares {
			wrapped = middlewares[len(middlewares)-1-i](wrapped)
		}
		return wrapped
	}
}
