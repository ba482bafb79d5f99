package logging

import (
	"errors"
	"testing"
	"time"
)

func TestFieldConstructors(t *testing.T) {
	if f := String("k", "v"); f.Key != "k" || f.Value != "v" {
		t.Errorf("String: got %+v", f)
	}
	if f := Int("n", 7); f.Key != "n" || f.Value != 7 {
		t.Errorf("Int: got %+v", f)
	}
	if f := Uint32("lbn", 42); f.Key != "lbn" || f.Value != uint32(42) {
		t.Errorf("Uint32: got %+v", f)
	}
	if f := Uint64("seq", 9); f.Key != "seq" || f.Value != uint64(9) {
		t.Errorf("Uint64: got %+v", f)
	}
	if f := Bool("ok", true); f.Key != "ok" || f.Value != true {
		t.Errorf("Bool: got %+v", f)
	}
}

func TestDurationFieldFormatsAsString(t *testing.T) {
	f := Duration("latency", 2*time.Millisecond)
	if f.Value != (2 * time.Millisecond).String() {
		t.Errorf("expected duration formatted as string, got %v", f.Value)
	}
}

func TestErrorFieldNilAndNonNil(t *testing.T) {
	if f := Error(nil); f.Value != nil {
		t.Errorf("expected nil error to produce a nil value, got %v", f.Value)
	}
	if f := Error(errors.New("boom")); f.Value != "boom" {
		t.Errorf("expected error message %q, got %v", "boom", f.Value)
	}
}

func TestComponentSpecificHelpers(t *testing.T) {
	if f := Component("gc"); f.Key != "component" || f.Value != "gc" {
		t.Errorf("Component: got %+v", f)
	}
	if f := Operation("flush"); f.Key != "operation" || f.Value != "flush" {
		t.Errorf("Operation: got %+v", f)
	}
	if f := Count(5); f.Key != "count" || f.Value != 5 {
		t.Errorf("Count: got %+v", f)
	}
	if f := Level(2); f.Key != "level" || f.Value != 2 {
		t.Errorf("Level: got %+v", f)
	}
	if f := LBN(3); f.Key != "lbn" || f.Value != uint32(3) {
		t.Errorf("LBN: got %+v", f)
	}
	if f := LPN(4); f.Key != "lpn" || f.Value != uint32(4) {
		t.Errorf("LPN: got %+v", f)
	}
	if f := FileName("00001.sst"); f.Key != "file_name" || f.Value != "00001.sst" {
		t.Errorf("FileName: got %+v", f)
	}
	if f := Seq(99); f.Key != "seq" || f.Value != uint64(99) {
		t.Errorf("Seq: got %+v", f)
	}
}
