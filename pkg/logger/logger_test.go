package logger

import (
	"reflect"
	"testing"
)

type recorder struct {
	lines []string
	kv    [][]any
}

func (r *recorder) add(level, msg string, keyvals []any) {
	r.lines = append(r.lines, level+" "+msg)
	r.kv = append(r.kv, keyvals)
}

func (r *recorder) Log(m string, kv ...any)   { r.add("log", m, kv) }
func (r *recorder) Debug(m string, kv ...any) { r.add("debug", m, kv) }
func (r *recorder) Info(m string, kv ...any)  { r.add("info", m, kv) }
func (r *recorder) Warn(m string, kv ...any)  { r.add("warn", m, kv) }
func (r *recorder) Error(m string, kv ...any) { r.add("error", m, kv) }
func (r *recorder) Fatal(m string, kv ...any) { r.add("fatal", m, kv) }

func TestFanOutToAllInstances(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	Init(a, b)
	defer Init()

	Info("[Test] hello", "k", 1)
	Log("[Test] plain", "x", "y")
	Warn("[Test] careful")

	want := []string{"info [Test] hello", "log [Test] plain", "warn [Test] careful"}
	for _, r := range []*recorder{a, b} {
		if !reflect.DeepEqual(r.lines, want) {
			t.Fatalf("lines = %v, want %v", r.lines, want)
		}
	}
	if !reflect.DeepEqual(a.kv[1], []any{"x", "y"}) {
		t.Fatalf("Log dropped keyvals: %v", a.kv[1])
	}
}

func TestNoInstancesIsNoop(t *testing.T) {
	Init()
	Info("nothing")
	Error("nothing")
}
