package engine

import (
	"log/slog"

	"github.com/chainkit/scriptvm/moduleloader"
	"github.com/chainkit/scriptvm/types"
)

// Config bundles everything CreateEngine needs beyond the process-wide
// Host Callback Registry: where the Module Loader is allowed to read
// library modules from, the optional version-pin delegate, default
// resource limits, and the logger (spec §4.1, §4.6).
//
// Logger follows the teacher's own convention of threading a *slog.Logger
// through rather than using a global logger (cmd/vm-cli/main.go constructs
// one with slog.NewTextHandler and passes it down).
type Config struct {
	// WhitelistRoot is the directory library modules resolve relative to.
	WhitelistRoot string
	// Whitelist lists the relative paths _native_require may resolve from
	// WhitelistRoot, in addition to the always-available jslib assets.
	Whitelist []string
	// VersionPins is consulted before the on-disk whitelist; nil disables
	// pinning entirely.
	VersionPins moduleloader.VersionPinStore

	// DefaultLimits applies to every RunScript call on the Engine; there is
	// no per-call override. A zero Limits uses DefaultTimeoutUS with no
	// instruction/memory cap, per spec §4.1.
	DefaultLimits types.Limits
	// DefaultVersionBits gates the optional capability groups; zero value
	// falls back to types.DefaultVersionBits (math + blockchain).
	DefaultVersionBits types.VersionBit

	Logger *slog.Logger
}

func (c Config) limits() types.Limits {
	l := c.DefaultLimits
	if l.TimeoutUS == 0 {
		l.TimeoutUS = types.DefaultTimeoutUS
	}
	return l
}

func (c Config) versionBits() types.VersionBit {
	if c.DefaultVersionBits == 0 {
		return types.DefaultVersionBits
	}
	return c.DefaultVersionBits
}

func (c Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
