package passphrase

import (
	"errors"
	"testing"
)

func envMap(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func TestSourcePrefersEnvironment(t *testing.T) {
	s := NewSource("RUNCLUB_PASS", "operator")
	s.lookupEnv = envMap(map[string]string{"RUNCLUB_PASS": "hunter2"})
	prompted := false
	s.prompt = func(string) (string, error) {
		prompted = true
		return "", nil
	}

	got, err := s.Get()
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != "hunter2" || prompted {
		t.Fatalf("expected env passphrase without prompt, got %q prompted=%v", got, prompted)
	}
}

func TestSourceRejectsEmptyEnvironment(t *testing.T) {
	s := NewSource("RUNCLUB_PASS", "operator")
	s.lookupEnv = envMap(map[string]string{"RUNCLUB_PASS": "   "})
	if _, err := s.Get(); err == nil {
		t.Fatalf("expected error for blank env passphrase")
	}
}

func TestSourcePromptsAndCaches(t *testing.T) {
	s := NewSource("", "")
	s.lookupEnv = envMap(nil)
	calls := 0
	s.prompt = func(label string) (string, error) {
		calls++
		if label != "keystore" {
			t.Fatalf("unexpected label %q", label)
		}
		return "s3cret", nil
	}
	for i := 0; i < 2; i++ {
		got, err := s.Get()
		if err != nil || got != "s3cret" {
			t.Fatalf("get: %q %v", got, err)
		}
	}
	if calls != 1 {
		t.Fatalf("expected one prompt, got %d", calls)
	}
}

func TestSourceWithoutTerminalNamesEnvVar(t *testing.T) {
	s := NewSource("RUNCLUB_PASS", "operator")
	s.lookupEnv = envMap(nil)
	s.prompt = func(string) (string, error) { return "", errNoTerminal }
	_, err := s.Get()
	if err == nil || errors.Is(err, errNoTerminal) {
		t.Fatalf("expected wrapped guidance error, got %v", err)
	}
}
