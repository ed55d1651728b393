// Package sandbox runs validated analysis code in a yaegi interpreter with
// the tabular and numeric libraries pre-bound. There is no process isolation:
// interpreted code has the same capabilities as the host.
package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"reflect"
	"runtime/debug"
	"strings"
	"time"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/pushkal/server/internal/analysis/model"
	logx "github.com/pushkal/server/pkg/logger"
)

const (
	resultIdent  = "result"
	accessorName = "ResultValue"
	maxOutput    = 4096
)

// Executor evaluates one program per call in a fresh interpreter.
type Executor struct {
	symbols interp.Exports
	timeout time.Duration
}

// New creates an executor. A zero timeout disables the evaluation deadline.
func New(timeout time.Duration) *Executor {
	return &Executor{symbols: Symbols, timeout: timeout}
}

// Execute runs code and captures the value bound to the package-level
// result variable. It never returns an error: failures are reported in the
// outcome.
func (e *Executor) Execute(ctx context.Context, code string) model.ExecutionOutcome {
	start := time.Now()
	out := &boundedBuffer{limit: maxOutput}

	val, err := e.run(ctx, code, out)
	elapsed := float64(time.Since(start).Microseconds()) / 1000

	if out.Len() > 0 {
		logx.Debug().Int("bytes", out.Len()).Str("output", out.String()).Msg("sandbox output")
	}

	if err != nil {
		logx.Warn().Err(err).Float64("elapsed_ms", elapsed).Msg("sandbox execution failed")
		return model.ExecutionOutcome{Result: failure(err, elapsed)}
	}

	data, err := Envelope(val)
	if err != nil {
		return model.ExecutionOutcome{Result: failure(err, elapsed)}
	}
	return model.ExecutionOutcome{
		Result: model.ExecutionResult{Success: true, ExecutionTimeMs: elapsed},
		Data:   data,
	}
}

func (e *Executor) run(ctx context.Context, code string, out *boundedBuffer) (val any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = interp.Panic{Value: r, Stack: debug.Stack()}
		}
	}()

	i := interp.New(interp.Options{Stdout: out, Stderr: out})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("load stdlib symbols: %w", err)
	}
	if err := i.Use(e.symbols); err != nil {
		return nil, fmt.Errorf("load library symbols: %w", err)
	}

	if _, err := e.eval(ctx, i, program(code)); err != nil {
		return nil, err
	}

	// The accessor is compiled separately so errors in the user source are
	// reported against that source alone.
	if _, err := e.eval(ctx, i, accessor); err != nil {
		if isUndefinedResult(err) {
			return nil, ErrNoResult
		}
		return nil, fmt.Errorf("read result: %w", err)
	}
	fn, err := e.eval(ctx, i, "main."+accessorName)
	if err != nil {
		return nil, fmt.Errorf("read result: %w", err)
	}
	get, ok := fn.Interface().(func() interface{})
	if !ok {
		return nil, errors.New("read result: unexpected accessor signature")
	}
	return get(), nil
}

func (e *Executor) eval(ctx context.Context, i *interp.Interpreter, src string) (reflect.Value, error) {
	if e.timeout <= 0 {
		return i.Eval(src)
	}
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return i.EvalWithContext(ctx, src)
}

const accessor = "func " + accessorName + "() interface{} { return " + resultIdent + " }"

// program adds the package clause when the source omits it.
func program(code string) string {
	if strings.HasPrefix(strings.TrimSpace(code), "package ") {
		return code
	}
	return "package main\n\n" + code
}

func isUndefinedResult(err error) bool {
	return strings.Contains(err.Error(), "undefined: "+resultIdent)
}

func failure(err error, elapsed float64) model.ExecutionResult {
	res := model.ExecutionResult{
		Success:         false,
		Error:           err.Error(),
		ExecutionTimeMs: elapsed,
	}
	var p interp.Panic
	switch {
	case errors.As(err, &p):
		res.Error = fmt.Sprint(p.Value)
		res.Traceback = "panic: " + res.Error + "\n\n" + string(p.Stack)
	case errors.Is(err, ErrNoResult):
		res.Traceback = ""
	default:
		res.Traceback = err.Error()
	}
	return res
}

// boundedBuffer keeps the first limit bytes written by interpreted code.
type boundedBuffer struct {
	bytes.Buffer
	limit int
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	if room := b.limit - b.Buffer.Len(); room > 0 {
		if len(p) > room {
			b.Buffer.Write(p[:room])
		} else {
			b.Buffer.Write(p)
		}
	}
	return len(p), nil
}
