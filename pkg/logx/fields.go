package logx

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Field adds one key to an event. Later fields win on duplicate keys.
type Field func(e *zerolog.Event)

func String(k, v string) Field                 { return func(e *zerolog.Event) { e.Str(k, v) } }
func Int(k string, v int) Field                { return func(e *zerolog.Event) { e.Int(k, v) } }
func Bool(k string, v bool) Field              { return func(e *zerolog.Event) { e.Bool(k, v) } }
func Duration(k string, v time.Duration) Field { return func(e *zerolog.Event) { e.Dur(k, v) } }
func Time(k string, v time.Time) Field         { return func(e *zerolog.Event) { e.Time(k, v) } }
func Any(k string, v any) Field                { return func(e *zerolog.Event) { e.Interface(k, v) } }

// Stringer logs v.String(); money amounts and ids go through here.
func Stringer(k string, v fmt.Stringer) Field {
	return func(e *zerolog.Event) { e.Stringer(k, v) }
}

// Err logs err under "err"; a nil error adds nothing.
func Err(err error) Field {
	return func(e *zerolog.Event) {
		if err != nil {
			e.AnErr("err", err)
		}
	}
}
