package interfaces

// Service is implemented by every interface exposing the executor to
// traders. Start must not block, Stop gracefully drains in-flight requests.
type Service interface {
	Start() error
	Stop()
}
