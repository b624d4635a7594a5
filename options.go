package nostrmux

// RelayOption configures a relay added with AddRelay.
type RelayOption func(*relayOptions)

type relayOptions struct {
	read  bool
	write bool
}

func relayDefaults() relayOptions {
	return relayOptions{read: true, write: true}
}

// ReadOnly marks the relay as subscription-only; publications skip it.
func ReadOnly() RelayOption {
	return func(o *relayOptions) {
		o.read = true
		o.write = false
	}
}

// WriteOnly marks the relay as publication-only; it receives no REQs and
// its transport is not started until a readable role is assigned.
func WriteOnly() RelayOption {
	return func(o *relayOptions) {
		o.read = false
		o.write = true
	}
}

// SubOption configures subscription behavior.
type SubOption func(*subOptions)

type subOptions struct {
	bufferSize int
}

func subDefaults() subOptions {
	return subOptions{bufferSize: defaultStreamBuffer}
}

// WithBufferSize overrides the event stream buffer. When the buffer is
// full, further events are dropped and reported to the ErrorHandler.
func WithBufferSize(n int) SubOption {
	return func(o *subOptions) {
		if n > 0 {
			o.bufferSize = n
		}
	}
}

// SendOption configures publication behavior.
type SendOption func(*sendOptions)

type sendOptions struct {
	secretKey string
	signer    Signer
}

func sendDefaults() sendOptions {
	return sendOptions{}
}

// WithSecretKey signs this publication with the given hex or nsec key
// instead of the client's configured signer.
func WithSecretKey(secretKey string) SendOption {
	return func(o *sendOptions) {
		o.secretKey = secretKey
	}
}

// WithSigner signs this publication with the given Signer.
func WithSigner(s Signer) SendOption {
	return func(o *sendOptions) {
		o.signer = s
	}
}
