package logging

import "time"

func String(key, value string) Field    { return Field{Key: key, Value: value} }
func Int(key string, value int) Field   { return Field{Key: key, Value: value} }
func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value}
}
func Uint32(key string, value uint32) Field { return Field{Key: key, Value: value} }
func Uint64(key string, value uint64) Field { return Field{Key: key, Value: value} }
func Bool(key string, value bool) Field     { return Field{Key: key, Value: value} }

func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value.String()}
}

func Error(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

func Any(key string, value any) Field { return Field{Key: key, Value: value} }

// Component-specific helpers used across flush/compaction/GC/cache events.
func Component(name string) Field  { return String("component", name) }
func Operation(op string) Field    { return String("operation", op) }
func Latency(d time.Duration) Field { return Duration("latency", d) }
func Count(n int) Field            { return Int("count", n) }
func Level(n int) Field            { return Int("level", n) }
func LBN(v uint32) Field           { return Uint32("lbn", v) }
func LPN(v uint32) Field           { return Uint32("lpn", v) }
func FileName(name string) Field   { return String("file_name", name) }
func Seq(v uint64) Field           { return Uint64("seq", v) }
