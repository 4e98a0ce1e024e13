// panic_recovery.go: panic isolation for plugin callbacks and intercept handlers
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modloader

import (
	"runtime"
)

// RecoveryHandler defines the signature for panic recovery handlers.
type RecoveryHandler func(recovered interface{}, stack []byte)

// withStackRecover returns a panic recovery function that logs the panic
// together with the goroutine stack.
//
//	go func() {
//	    defer withStackRecover(logger)()
//	    // potentially panicking code
//	}()
func withStackRecover(logger Logger) func() {
	return func() {
		if r := recover(); r != nil {
			logger.Error("Panic recovered in goroutine",
				"panic", r,
				"stack", string(captureStack()))
		}
	}
}

// withCustomRecoveryHandler returns a panic recovery function that hands the
// recovered value and stack to handler.
func withCustomRecoveryHandler(handler RecoveryHandler) func() {
	return func() {
		if r := recover(); r != nil {
			handler(r, captureStack())
		}
	}
}

// SafeGo executes fn in a new goroutine with automatic panic recovery.
func SafeGo(logger Logger, fn func()) {
	go func() {
		defer withStackRecover(logger)()
		fn()
	}()
}

// invokeIsolated runs a plugin callback. A panic becomes a
// PluginPanicError and a returned error a PluginCallbackError.
func invokeIsolated(logger Logger, plugin, callback string, fn func() error) (err error) {
	defer withCustomRecoveryHandler(func(recovered interface{}, stack []byte) {
		logger.Error("Plugin callback panicked",
			"plugin", plugin,
			"callback", callback,
			"panic", recovered,
			"stack", string(stack))
		err = NewPluginPanicError(plugin, callback, recovered)
	})()
	if cbErr := fn(); cbErr != nil {
		return NewPluginCallbackError(plugin, callback, cbErr)
	}
	return nil
}

func captureStack() []byte {
	buf := make([]byte, 64<<10)
	n := runtime.Stack(buf, false)
	return buf[:n]
}
