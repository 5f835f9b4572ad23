package dialer

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/asterisk-tools/outbound-dialer/internal/config"
)

var numberPattern = regexp.MustCompile(`^[0-9+*#]+$`)

// loadNumbers reads the destination number list per §4.2: a file
// (one number per line, UTF-8, CR/CRLF tolerated) wins over an inline
// value when both are configured. Invalid lines are warned and
// skipped; an empty result is a fatal configuration error.
func loadNumbers(cfg config.Config, warn func(line, reason string)) ([]string, error) {
	var raw []string
	var err error
	if cfg.UsesNumberFile() {
		raw, err = readNumberFile(cfg.OutboundNumberFile)
		if err != nil {
			return nil, err
		}
	} else {
		raw = []string{cfg.OutboundNumber}
	}

	numbers := make([]string, 0, len(raw))
	for _, line := range raw {
		n := strings.TrimSpace(line)
		if n == "" {
			continue
		}
		if !numberPattern.MatchString(n) {
			if warn != nil {
				warn(n, "does not match ^[0-9+*#]+$")
			}
			continue
		}
		numbers = append(numbers, n)
	}

	if len(numbers) == 0 {
		return nil, fmt.Errorf("no valid destination numbers found")
	}
	return numbers, nil
}

func readNumberFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, strings.TrimRight(scanner.Text(), "\r"))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return lines, nil
}
