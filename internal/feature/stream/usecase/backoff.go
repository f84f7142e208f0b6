package usecase

import "time"

const (
	backoffBase          = 2 * time.Second
	backoffMax           = 5 * time.Minute
	backoffCredentialMin = 10 * time.Minute
)

// backoff tracks the reconnect delay for one session loop. Delays grow
// exponentially up to backoffMax and reset to the base on a clean connect.
// Credential failures get a fixed long floor instead, since retrying faster
// cannot help until the operator refreshes the token.
type backoff struct {
	next time.Duration
}

func newBackoff() *backoff {
	return &backoff{next: backoffBase}
}

// Next returns the delay to wait before the next attempt and advances the
// schedule.
func (b *backoff) Next() time.Duration {
	d := b.next
	b.next *= 2
	if b.next > backoffMax {
		b.next = backoffMax
	}
	return d
}

// NextCredential returns the delay for a credential failure. It does not
// advance the exponential schedule; once credentials are fixed a reconnect
// should come quickly.
func (b *backoff) NextCredential() time.Duration {
	return backoffCredentialMin
}

// Reset restores the base delay after a successful connection.
func (b *backoff) Reset() {
	b.next = backoffBase
}
