package client

import (
	"github.com/jsp-lqk/metapipe-arith/internal/protocol"
)

const (
	MaxTextKeyLength   = protocol.MaxTextKeyLength
	MaxBinaryKeyLength = protocol.MaxBinaryKeyLength
)

// ValidateKeyLength rejects empty keys and keys longer than the protocol
// allows.
func ValidateKeyLength(n int, binary bool) error {
	max := MaxTextKeyLength
	if binary {
		max = MaxBinaryKeyLength
	}
	if n == 0 || n > max {
		return ErrBadKey
	}
	return nil
}

func validateKey(key string, cfg Config) error {
	if err := ValidateKeyLength(len(key), cfg.Binary()); err != nil {
		return err
	}
	// binary keys are length-delimited, text keys end at whitespace
	if cfg.VerifyKey && !cfg.Binary() && !graphic(key) {
		return ErrBadKey
	}
	return nil
}

func graphic(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] <= ' ' || s[i] == 0x7f {
			return false
		}
	}
	return true
}
