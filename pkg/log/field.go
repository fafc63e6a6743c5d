package log

import "time"

// Field is a single structured logging attribute.
type Field struct {
	Key   string
	Value any
}

// F creates a Field from an arbitrary key/value pair.
func F(key string, value any) Field { return Field{Key: key, Value: value} }

// Str creates a string Field.
func Str(key, value string) Field { return Field{Key: key, Value: value} }

// Int creates an int Field.
func Int(key string, value int) Field { return Field{Key: key, Value: value} }

// Dur creates a duration Field.
func Dur(key string, value time.Duration) Field { return Field{Key: key, Value: value} }

// Err creates an error Field under the "error" key.
func Err(err error) Field { return Field{Key: "error", Value: err} }

// Component tags entries with the emitting component name.
func Component(name string) Field { return Field{Key: "component", Value: name} }
