package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := load("test")

	if cfg.BookingGraceWindow != DefaultBookingGraceWindow {
		t.Errorf("expected default grace window %s, got %s", DefaultBookingGraceWindow, cfg.BookingGraceWindow)
	}
	if cfg.SweepSchedule != DefaultSweepSchedule {
		t.Errorf("expected default sweep schedule %q, got %q", DefaultSweepSchedule, cfg.SweepSchedule)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate, got: %v", err)
	}
}

func TestLoad_GraceWindowFromEnv(t *testing.T) {
	t.Setenv(EnvBookingGraceWindow, "10m")
	t.Setenv(EnvSweepSchedule, "*/2 * * * *")
	t.Setenv(EnvDefaultCurrency, "EUR")

	cfg := load("test")

	if cfg.BookingGraceWindow != 10*time.Minute {
		t.Errorf("expected 10m, got %s", cfg.BookingGraceWindow)
	}
	if cfg.DefaultCurrency != "eur" {
		t.Errorf("expected currency to be lowercased, got %s", cfg.DefaultCurrency)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}

func TestLoad_UnparsableValuesFallBack(t *testing.T) {
	t.Setenv(EnvBookingGraceWindow, "fifteen minutes")
	t.Setenv(EnvSweepBatchSize, "lots")

	cfg := load("test")

	if cfg.BookingGraceWindow != DefaultBookingGraceWindow {
		t.Errorf("expected fallback grace window, got %s", cfg.BookingGraceWindow)
	}
	if cfg.SweepBatchSize != DefaultSweepBatchSize {
		t.Errorf("expected fallback batch size, got %d", cfg.SweepBatchSize)
	}
}

func TestValidate_CollectsAllProblems(t *testing.T) {
	cfg := load("test")
	cfg.Port = "99999"
	cfg.BookingGraceWindow = 0
	cfg.SweepSchedule = "every now and then"
	cfg.PlatformFeeBps = 20000
	cfg.JWTSecret = "short"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}

	msg := err.Error()
	for _, want := range []string{"Port", "BookingGraceWindow", "SweepSchedule", "PlatformFeeBps", "JWTSecret"} {
		if !strings.Contains(msg, want) {
			t.Errorf("expected error to mention %s, got:\n%s", want, msg)
		}
	}
}

func TestRedactMongoURI(t *testing.T) {
	got := redactMongoURI("mongodb://admin:hunter2@db:27017/readerhub")
	if strings.Contains(got, "hunter2") {
		t.Errorf("password leaked: %s", got)
	}
	if got != "mongodb://***:***@db:27017/readerhub" {
		t.Errorf("unexpected redaction: %s", got)
	}
}

func TestValidate_FeedSealingKey(t *testing.T) {
	cfg := load("test")
	cfg.FeedSealingKey = "c2hvcnQ="

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "FeedSealingKey") {
		t.Fatalf("expected FeedSealingKey error, got %v", err)
	}

	cfg.FeedSealingKey = "MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY="
	if err := cfg.Validate(); err != nil {
		t.Fatalf("32 byte key should validate, got: %v", err)
	}
}
