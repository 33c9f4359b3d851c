package trace

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDisabledIsNoop(t *testing.T) {
	if err := Init(Config{}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	_, span := StartSpan(context.Background(), "noop")
	span.End()
	if err := Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

func TestShutdownFlushesAndClosesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spans.log")
	if err := Init(Config{Enabled: true, File: path}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	f := spanFile
	if f == nil {
		t.Fatal("span file not kept")
	}

	_, span := StartSpan(context.Background(), "store.persist")
	span.End()
	if err := Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	if _, err := f.Write([]byte("x")); err == nil {
		t.Error("span file still open after Shutdown")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), "store.persist") {
		t.Errorf("span not flushed: %s", b)
	}
	if err := Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown: %v", err)
	}
}
