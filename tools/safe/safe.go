package safe

import (
	"fmt"
	"reflect"

	"go.uber.org/zap"

	"vhrealtime/logger"
	"vhrealtime/tools/errs"
)

// MustNotNil panics if the given value is nil.
// Useful for enforcing required collaborators during construction.
func MustNotNil(v any, name string) {
	if v == nil {
		panic(fmt.Sprintf("%s must not be nil", name))
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		if rv.IsNil() {
			panic(fmt.Sprintf("%s must not be nil", name))
		}
	}
}

// SafeGo starts a new goroutine that recovers from panic,
// so that panics don't crash the entire program.
func SafeGo(f func()) {
	go func() {
		defer Recover("SafeGo")
		f()
	}()
}

// Recover logs a recovered panic. Use as `defer safe.Recover("where")`.
func Recover(where string) {
	if r := recover(); r != nil {
		logger.Error("panic recovered", zap.String("where", where), zap.Error(errs.ErrPanic(r)))
	}
}

// Run calls f and converts a panic into an error.
func Run(f func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errs.ErrPanic(r)
		}
	}()
	return f()
}
