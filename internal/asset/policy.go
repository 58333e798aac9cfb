package asset

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Mode selects how non-fatal lookup failures propagate.
type Mode int

const (
	// Strict surfaces every failure to the caller
	Strict Mode = iota
	// Lenient logs missing assets and metadata and returns empty results
	Lenient
)

func (m Mode) String() string {
	switch m {
	case Strict:
		return "strict"
	case Lenient:
		return "lenient"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode parses "strict" or "lenient".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "strict", "":
		return Strict, nil
	case "lenient":
		return Lenient, nil
	default:
		return Strict, fmt.Errorf("unknown error mode %q (expected strict or lenient)", s)
	}
}

// Policy is the error handling policy injected into every source.
//
// Lenient mode only tolerates lookups that miss (ErrNotFound) or fail at the
// OS boundary (ErrIO). Format, decompression and codec errors always surface,
// and index construction never consults the policy at all.
type Policy struct {
	Mode   Mode
	Logger *slog.Logger
}

// StrictPolicy returns a policy that surfaces every error.
func StrictPolicy() Policy {
	return Policy{Mode: Strict}
}

// LenientPolicy returns a policy that logs tolerable failures to logger.
func LenientPolicy(logger *slog.Logger) Policy {
	return Policy{Mode: Lenient, Logger: logger}
}

// Log returns the diagnostics sink, falling back to slog.Default.
func (p Policy) Log() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}

// Tolerate filters err from a non-fatal lookup. It returns nil when the
// policy swallows the failure, after logging it.
func (p Policy) Tolerate(err error) error {
	if err == nil || p.Mode != Lenient {
		return err
	}
	if !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrIO) {
		return err
	}
	p.Log().Warn("Asset lookup failed, returning empty result", "error", err)
	return nil
}
