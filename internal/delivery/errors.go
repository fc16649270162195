package delivery

import "fmt"

// retryableStatuses are the response codes worth another attempt.
// Everything else is terminal for the payload.
var retryableStatuses = map[int]bool{
	408: true,
	413: true,
	429: true,
	500: true,
	502: true,
	503: true,
	504: true,
}

// TransportError is a delivery attempt rejected by the server
type TransportError struct {
	Status int
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("delivery rejected with status %d", e.Status)
}

// Retryable reports whether the status is in the retryable set
func (e *TransportError) Retryable() bool {
	return retryableStatuses[e.Status]
}
