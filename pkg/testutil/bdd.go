package testutil

import "testing"

// Given, When and Then name subtests after the step they describe. Steps run
// in order and share state through the enclosing test's variables.
func Given(t *testing.T, desc string, fn func(t *testing.T)) { step(t, "Given", desc, fn) }

func When(t *testing.T, desc string, fn func(t *testing.T)) { step(t, "When", desc, fn) }

func Then(t *testing.T, desc string, fn func(t *testing.T)) { step(t, "Then", desc, fn) }

// A failed step stops the scenario; later steps would only report noise.
func step(t *testing.T, kind, desc string, fn func(t *testing.T)) {
	t.Helper()
	if !t.Run(kind+" "+desc, fn) {
		t.FailNow()
	}
}
