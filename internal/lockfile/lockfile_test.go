package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
)

func TestLockAcquisition(t *testing.T) {
	dir := t.TempDir()
	lock, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("Failed to acquire lock: %v", err)
	}
	defer lock.Release()

	if lock.Path() != filepath.Join(dir, LockFileName) {
		t.Errorf("unexpected lock path %s", lock.Path())
	}
	content, err := os.ReadFile(lock.Path())
	if err != nil {
		t.Fatalf("Failed to read lock file: %v", err)
	}
	if !strings.HasPrefix(string(content), fmt.Sprintf("pid=%d\nstarted=", os.Getpid())) {
		t.Errorf("unexpected lock file content %q", content)
	}
}

func TestLockConflict(t *testing.T) {
	dir := t.TempDir()
	lock1, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("Failed to acquire first lock: %v", err)
	}
	defer lock1.Release()

	lock2, err := AcquireLock(dir)
	if err == nil {
		lock2.Release()
		t.Fatal("expected second lock to fail")
	}
	var lockErr *LockError
	if !errors.As(err, &lockErr) {
		t.Fatalf("expected LockError, got %T", err)
	}
	if !errors.Is(err, syscall.EWOULDBLOCK) {
		t.Errorf("expected EWOULDBLOCK cause, got %v", lockErr.Cause)
	}
	want := fmt.Sprintf("PID %d (running)", os.Getpid())
	if lockErr.Holder != want {
		t.Errorf("expected holder %q, got %q", want, lockErr.Holder)
	}
	if !strings.Contains(err.Error(), lockErr.LockPath) {
		t.Errorf("error should name the lock file: %v", err)
	}

	content, _ := os.ReadFile(lock1.Path())
	if !strings.Contains(string(content), fmt.Sprintf("pid=%d", os.Getpid())) {
		t.Error("failed attempt must not clobber the holder's lock info")
	}
}

func TestLockReleaseAndReacquire(t *testing.T) {
	dir := t.TempDir()
	lock, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("Failed to acquire lock: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("second Release failed: %v", err)
	}
	if _, err := os.Stat(lock.Path()); !os.IsNotExist(err) {
		t.Error("expected lock file removed")
	}

	again, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("Failed to reacquire lock: %v", err)
	}
	again.Release()
}

func TestAcquireLockCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "state")
	lock, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("Failed to acquire lock: %v", err)
	}
	defer lock.Release()
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("expected state directory created: %v", err)
	}
}

func TestParsePID(t *testing.T) {
	tests := map[string]int{
		"pid=12345\n":                      12345,
		"pid=42\nstarted=2025-01-01T00:00Z": 42,
		"started=x\npid=7":                 7,
		"pid=abc":                          0,
		"":                                 0,
		"no pid here":                      0,
	}
	for in, want := range tests {
		if got := parsePID(in); got != want {
			t.Errorf("parsePID(%q) = %d, expected %d", in, got, want)
		}
	}
}

func TestIsProcessRunning(t *testing.T) {
	if !isProcessRunning(os.Getpid()) {
		t.Error("current process should be running")
	}
	if isProcessRunning(999999) {
		t.Error("PID 999999 should not be running")
	}
}

func TestDescribeHolder(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, LockFileName)
	if got := describeHolder(path); !strings.Contains(got, "unreadable") {
		t.Errorf("expected unreadable, got %q", got)
	}
	os.WriteFile(path, nil, 0644)
	if got := describeHolder(path); !strings.Contains(got, "empty") {
		t.Errorf("expected empty, got %q", got)
	}
	os.WriteFile(path, []byte("pid=999999\n"), 0644)
	if got := describeHolder(path); got != "PID 999999 (not running)" {
		t.Errorf("unexpected holder %q", got)
	}
}
