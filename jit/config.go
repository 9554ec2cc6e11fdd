package jit

import (
	"github.com/tetratelabs/wazero"
)

// Mode selects the wazero execution engine.
type Mode uint8

const (
	// ModeAuto compiles to native code where wazero supports it and falls
	// back to the wazero interpreter elsewhere.
	ModeAuto Mode = iota
	// ModeCompiler always compiles to native code. wazero panics on
	// platforms without compiler support.
	ModeCompiler
	// ModeInterpreter runs the generated modules in the wazero interpreter.
	ModeInterpreter
)

func (m Mode) String() string {
	switch m {
	case ModeAuto:
		return "auto"
	case ModeCompiler:
		return "compiler"
	case ModeInterpreter:
		return "interpreter"
	default:
		return "unknown"
	}
}

// Config holds configuration for factory creation
type Config struct {
	// CompilationCache is shared with other runtimes when set. Otherwise the
	// factory creates an in-memory cache and closes it with the factory.
	CompilationCache wazero.CompilationCache

	// Mode selects the execution engine.
	Mode Mode

	// MemoryLimitPages caps the linear memory of every kernel, in 64KiB
	// pages. Programs whose buffers and state need more fail to link.
	// 0 means DefaultMemoryLimitPages.
	MemoryLimitPages uint32
}

// DefaultMemoryLimitPages is 256MiB.
const DefaultMemoryLimitPages = 4096

// DefaultConfig returns the default factory configuration.
func DefaultConfig() *Config {
	return &Config{
		Mode:             ModeAuto,
		MemoryLimitPages: DefaultMemoryLimitPages,
	}
}

func (c *Config) memoryLimit() uint32 {
	switch {
	case c.MemoryLimitPages == 0:
		return DefaultMemoryLimitPages
	case c.MemoryLimitPages > maxPages:
		return maxPages
	}
	return c.MemoryLimitPages
}
