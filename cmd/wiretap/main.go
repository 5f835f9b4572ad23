// Command wiretap captures raw ARI event WebSocket frames to a file
// for offline debugging, and can sanitize a capture afterward before
// it leaves the building.
package main

import (
	"flag"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

func main() {
	ariURL := flag.String("url", "http://127.0.0.1:8088/ari", "ARI base URL")
	user := flag.String("user", "asterisk", "ARI username")
	secret := flag.String("secret", "", "ARI password")
	app := flag.String("app", "outbound_dialer", "Stasis application to subscribe to")
	outDir := flag.String("outdir", "testdata/captures", "Output directory for captures")
	sanitize := flag.String("sanitize", "", "Sanitize a capture file in-place (keeps .bak)")
	flag.Parse()

	if *sanitize != "" {
		if err := sanitizeFile(*sanitize); err != nil {
			fmt.Fprintf(os.Stderr, "sanitize error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("sanitized:", *sanitize)
		return
	}

	if *secret == "" {
		fmt.Fprintln(os.Stderr, "error: -secret is required")
		flag.Usage()
		os.Exit(1)
	}

	if err := capture(*ariURL, *user, *secret, *app, *outDir); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func capture(ariURL, user, secret, app, outDir string) error {
	wsURL, err := url.Parse(ariURL)
	if err != nil {
		return fmt.Errorf("parsing ARI URL: %w", err)
	}
	switch wsURL.Scheme {
	case "https":
		wsURL.Scheme = "wss"
	default:
		wsURL.Scheme = "ws"
	}
	wsURL.Path = wsURL.Path + "/events"
	q := wsURL.Query()
	q.Set("app", app)
	q.Set("api_key", user+":"+secret)
	q.Set("subscribeAll", "true")
	wsURL.RawQuery = q.Encode()

	fmt.Printf("connecting to %s://%s%s (app=%s)...\n", wsURL.Scheme, wsURL.Host, strings.TrimSuffix(wsURL.Path, "/events")+"/events", app)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL.String(), nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}

	filename := filepath.Join(outDir, time.Now().Format("20060102-150405")+".ndjson")
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}
	defer f.Close()

	fmt.Printf("writing to %s\n", filename)
	fmt.Println("streaming events (ctrl+c to stop)...")

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		f.Write(data)
		f.Write([]byte("\n"))
	}
}

var (
	ipPattern       = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)
	phonePattern    = regexp.MustCompile(`\b1?\d{10}\b`)
	secretPattern   = regexp.MustCompile(`(?i)("api_key"\s*:\s*").+?(")`)
	passwordPattern = regexp.MustCompile(`(?i)("password"\s*:\s*").+?(")`)
)

func sanitizeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	bakPath := path + ".bak"
	if err := os.WriteFile(bakPath, data, 0o644); err != nil {
		return fmt.Errorf("creating backup: %w", err)
	}

	lines := strings.Split(string(data), "\n")
	for i, line := range lines {
		line = secretPattern.ReplaceAllString(line, "${1}REDACTED${2}")
		line = passwordPattern.ReplaceAllString(line, "${1}REDACTED${2}")

		line = ipPattern.ReplaceAllStringFunc(line, func(ip string) string {
			if ip == "127.0.0.1" {
				return ip
			}
			return "10.0.0.1"
		})

		if strings.Contains(line, "caller_number") || strings.Contains(line, "connected_number") {
			line = phonePattern.ReplaceAllString(line, "15550001234")
		}

		lines[i] = line
	}

	return os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o644)
}
