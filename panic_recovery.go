// panic_recovery.go: Panic recovery for constructors and background goroutines
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package shimbridge

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/agilira/go-timecache"
)

// RecoveryHandler is called with the recovered value and the goroutine stack.
type RecoveryHandler func(recovered any, stack []byte)

// PanicError carries a recovered panic as an error.
type PanicError struct {
	Value any
	Stack []byte
}

func (p *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", p.Value)
}

func captureStack() []byte {
	buf := make([]byte, 64<<10)
	n := runtime.Stack(buf, false)
	return buf[:n]
}

// withStackRecover returns a deferred function logging any panic with its
// stack trace.
//
//	go func() {
//	    defer withStackRecover(logger)()
//	    // ...
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

// callRecovering runs fn and converts a panic into a *PanicError.
func callRecovering[T any](fn func() (T, error)) (result T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			result = zero
			err = &PanicError{Value: r, Stack: captureStack()}
		}
	}()
	return fn()
}

// SafeGo runs fn in a new goroutine; a panic is logged instead of crashing
// the process.
func SafeGo(logger Logger, fn func()) {
	go func() {
		defer withStackRecover(logger)()
		fn()
	}()
}

// SafeGoWithHandler is SafeGo with a custom recovery handler.
func SafeGoWithHandler(handler RecoveryHandler, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				handler(r, captureStack())
			}
		}()
		fn()
	}()
}

// RecoveryMetrics counts recovered panics per component.
type RecoveryMetrics struct {
	mu                   sync.Mutex
	TotalPanicsRecovered int64            `json:"total_panics_recovered"`
	LastPanicTime        time.Time        `json:"last_panic_time"`
	PanicsByComponent    map[string]int64 `json:"panics_by_component"`
}

func (m *RecoveryMetrics) record(component string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TotalPanicsRecovered++
	m.LastPanicTime = time.Unix(0, timecache.CachedTimeNano())
	if m.PanicsByComponent == nil {
		m.PanicsByComponent = make(map[string]int64)
	}
	m.PanicsByComponent[component]++
	return m.TotalPanicsRecovered
}

// Total returns the number of recovered panics.
func (m *RecoveryMetrics) Total() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.TotalPanicsRecovered
}

// ByComponent returns the count for component.
func (m *RecoveryMetrics) ByComponent(component string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.PanicsByComponent[component]
}

// MetricsRecoveryHandler returns a handler that counts the panic in metrics
// and logs it with component context.
func MetricsRecoveryHandler(logger Logger, metrics *RecoveryMetrics, component string) RecoveryHandler {
	return func(recovered any, stack []byte) {
		total := metrics.record(component)
		logger.Error("Panic recovered",
			"panic", recovered,
			"component", component,
			"total_panics", total,
			"stack", string(stack))
	}
}
