package dropzone

import (
	"context"
	"errors"
	"reflect"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shandysiswandi/gostage/internal/ingest/entity"
	"github.com/shandysiswandi/gostage/internal/ingest/usecase"
)

type recordingAdmitter struct {
	mu     sync.Mutex
	offers [][]string
	// refuse fails this many offers before admitting.
	refuse int
}

func (a *recordingAdmitter) Admit(_ context.Context, incoming []entity.IncomingFile) (usecase.AdmitResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	names := make([]string, 0, len(incoming))
	for _, in := range incoming {
		names = append(names, in.Name)
	}
	a.offers = append(a.offers, names)

	if a.refuse > 0 {
		a.refuse--
		return usecase.AdmitResult{}, errors.New("batch full")
	}

	res := usecase.AdmitResult{}
	for _, in := range incoming {
		res.Admitted = append(res.Admitted, entity.StagedFile{ID: in.Name, Name: in.Name, Size: in.Size})
	}
	return res, nil
}

func (a *recordingAdmitter) snapshot() [][]string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([][]string(nil), a.offers...)
}

func waitOffers(t *testing.T, a *recordingAdmitter, n int) [][]string {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if offers := a.snapshot(); len(offers) >= n {
			return offers
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %d offers, got %v", n, a.snapshot())
	return nil
}

func TestWatcherOffersExistingAndNewFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.csv"), []byte("1\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".hidden"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	admitter := &recordingAdmitter{}
	w, err := NewWatcher(Config{Dir: dir, Settle: 30 * time.Millisecond}, admitter)
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	offers := waitOffers(t, admitter, 1)
	if len(offers[0]) != 1 || offers[0][0] != "a.csv" {
		t.Fatalf("unexpected first offer: %v", offers[0])
	}

	if err := os.WriteFile(filepath.Join(dir, "b.csv"), []byte("2\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	offers = waitOffers(t, admitter, 2)
	if len(offers[1]) != 1 || offers[1][0] != "b.csv" {
		t.Fatalf("unexpected second offer: %v", offers[1])
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatcherOffersRefusedFilesAgain(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.csv"), []byte("1\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	admitter := &recordingAdmitter{refuse: 1}
	w, err := NewWatcher(Config{Dir: dir, Settle: 30 * time.Millisecond}, admitter)
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	waitOffers(t, admitter, 1)
	if err := os.WriteFile(filepath.Join(dir, "b.csv"), []byte("2\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	offers := waitOffers(t, admitter, 2)
	if !reflect.DeepEqual(offers[1], []string{"a.csv", "b.csv"}) {
		t.Fatalf("second offer = %v, want [a.csv b.csv]", offers[1])
	}

	if err := os.WriteFile(filepath.Join(dir, "c.csv"), []byte("3\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	offers = waitOffers(t, admitter, 3)
	if !reflect.DeepEqual(offers[2], []string{"c.csv"}) {
		t.Fatalf("third offer = %v, want [c.csv]", offers[2])
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestNewWatcherRejectsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.csv")
	if err := os.WriteFile(path, []byte("1"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := NewWatcher(Config{Dir: path}, &recordingAdmitter{}); err == nil {
		t.Fatal("expected error for non-directory")
	}
	if _, err := NewWatcher(Config{Dir: t.TempDir()}, nil); err == nil {
		t.Fatal("expected error without admitter")
	}
}
