package resilience

import (
	"errors"
	"testing"
	"time"
)

func TestChain_PrimaryFirst(t *testing.T) {
	c := NewChain("primary", "a", BreakerConfig{})
	c.Add("fallback", "b")

	got, err := Try(c, func(v string) (string, error) { return v, nil })
	if err != nil {
		t.Fatalf("Try: %v", err)
	}
	if got != "a" {
		t.Errorf("result = %q, want primary %q", got, "a")
	}
}

func TestChain_FailoverToNext(t *testing.T) {
	c := NewChain("primary", "a", BreakerConfig{})
	c.Add("fallback", "b")

	got, err := Try(c, func(v string) (string, error) {
		if v == "a" {
			return "", errBackend
		}
		return v, nil
	})
	if err != nil {
		t.Fatalf("Try: %v", err)
	}
	if got != "b" {
		t.Errorf("result = %q, want fallback %q", got, "b")
	}
}

func TestChain_AllFail(t *testing.T) {
	c := NewChain("primary", "a", BreakerConfig{})
	c.Add("fallback", "b")

	_, err := Try(c, func(string) (string, error) { return "", errBackend })
	if !errors.Is(err, ErrAllBackendsFailed) {
		t.Fatalf("err = %v, want ErrAllBackendsFailed", err)
	}
}

func TestChain_SkipsOpenBreaker(t *testing.T) {
	c := NewChain("primary", "a", BreakerConfig{Threshold: 1, Cooldown: time.Hour})
	c.Add("fallback", "b")

	// Trip the primary's breaker.
	_, _ = Try(c, func(v string) (string, error) {
		if v == "a" {
			return "", errBackend
		}
		return v, nil
	})

	var tried []string
	got, err := Try(c, func(v string) (string, error) {
		tried = append(tried, v)
		return v, nil
	})
	if err != nil {
		t.Fatalf("Try: %v", err)
	}
	if got != "b" {
		t.Errorf("result = %q, want %q", got, "b")
	}
	if len(tried) != 1 || tried[0] != "b" {
		t.Errorf("tried = %v, want only the fallback while primary breaker is open", tried)
	}
}

func TestChain_Names(t *testing.T) {
	c := NewChain("gemini", "a", BreakerConfig{})
	c.Add("openai", "b")

	names := c.Names()
	if len(names) != 2 || names[0] != "gemini" || names[1] != "openai" {
		t.Errorf("Names() = %v", names)
	}
}
