package api

// Limits bounds the size of a single request. A zero field takes the default.
type Limits struct {
	// MaxBatch caps the number of sequences per request.
	MaxBatch int `json:"max_batch"`
	// MaxFrames caps the padded sequence length T, and max_len for masks.
	MaxFrames int `json:"max_frames"`
	// MaxBodyBytes caps the request body; it is enforced by the body limit
	// middleware the server is mounted behind.
	MaxBodyBytes int64 `json:"max_body_bytes"`
}

const (
	DefaultMaxBatch     = 64
	DefaultMaxFrames    = 16384
	DefaultMaxBodyBytes = 64 << 20
)

// withDefaults fills unset fields.
func (l Limits) withDefaults() Limits {
	if l.MaxBatch <= 0 {
		l.MaxBatch = DefaultMaxBatch
	}
	if l.MaxFrames <= 0 {
		l.MaxFrames = DefaultMaxFrames
	}
	if l.MaxBodyBytes <= 0 {
		l.MaxBodyBytes = DefaultMaxBodyBytes
	}
	return l
}

func (l Limits) checkBatch(batch, frames int) error {
	if batch > l.MaxBatch {
		return newInvalidRequest("batch of %d sequences exceeds limit %d", batch, l.MaxBatch)
	}
	if frames > l.MaxFrames {
		return newInvalidRequest("%d frames exceeds limit %d", frames, l.MaxFrames)
	}
	return nil
}
