package dialer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/asterisk-tools/outbound-dialer/internal/config"
)

func TestLoadNumbersInline(t *testing.T) {
	cfg := config.Config{OutboundNumber: "5551234"}
	numbers, err := loadNumbers(cfg, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(numbers) != 1 || numbers[0] != "5551234" {
		t.Errorf("expected [5551234], got %v", numbers)
	}
}

func TestLoadNumbersFileWinsAndSkipsInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "numbers.txt")
	if err := os.WriteFile(path, []byte("5551111\r\nnot-a-number\n\n5552222\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := config.Config{OutboundNumber: "9999999", OutboundNumberFile: path}

	var skipped []string
	numbers, err := loadNumbers(cfg, func(line, reason string) { skipped = append(skipped, line) })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(numbers) != 2 || numbers[0] != "5551111" || numbers[1] != "5552222" {
		t.Errorf("expected the two valid file numbers (not the inline one), got %v", numbers)
	}
	if len(skipped) != 1 || skipped[0] != "not-a-number" {
		t.Errorf("expected exactly one skipped line, got %v", skipped)
	}
}

func TestLoadNumbersEmptyIsFatal(t *testing.T) {
	cfg := config.Config{OutboundNumber: "not valid at all"}
	if _, err := loadNumbers(cfg, nil); err == nil {
		t.Fatal("expected an error for an empty valid-number result")
	}
}
