package monitoring

import (
	"fmt"
	"testing"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...interface{}) {
		called = true
	})
	Logf("test message")
	if !called {
		t.Error("custom logger was not called")
	}

	// nil installs a no-op; this must not panic
	SetLogger(nil)
	Logf("test message")
}

func TestPrefixed(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var got string
	SetLogger(func(format string, v ...interface{}) {
		got = fmt.Sprintf(format, v...)
	})

	logf := Prefixed("store")
	logf("saved %d anchors", 3)
	if got != "[store] saved 3 anchors" {
		t.Errorf("got %q", got)
	}

	// the prefixed logger follows later SetLogger calls
	var second string
	SetLogger(func(format string, v ...interface{}) {
		second = fmt.Sprintf(format, v...)
	})
	logf("again")
	if second != "[store] again" {
		t.Errorf("got %q", second)
	}
}
