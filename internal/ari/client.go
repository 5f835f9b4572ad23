package ari

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
)

// Adapter is the command surface the correlator and orchestrator
// drive the telephony platform through. It is intentionally narrow:
// every command method here corresponds to exactly one ARI REST call
// named in the external interface contract, and Start opens the event
// stream. A test double satisfying this
// interface lets the rest of the system run without a real Asterisk.
type Adapter interface {
	Originate(ctx context.Context, req OriginateRequest) (*Channel, error)
	Answer(ctx context.Context, channelID string) error
	Hangup(ctx context.Context, channelID string) error
	CreateBridge(ctx context.Context, name string) (*Bridge, error)
	AddChannelToBridge(ctx context.Context, bridgeID, channelID string) error
	DestroyBridge(ctx context.Context, bridgeID string) error
	StartRecording(ctx context.Context, bridgeID string, req RecordingRequest) (*Recording, error)
	StopRecordingViaBridge(ctx context.Context, bridgeID string) error
	StopRecordingViaAPI(ctx context.Context, recordingName string) error

	// Start connects the event WebSocket for appName and begins
	// delivering events on the returned channel. The channel is
	// closed when the connection drops; callers are expected to
	// reconnect by calling Start again.
	Start(ctx context.Context, appName string) (<-chan Event, <-chan error, error)
}

// OriginateRequest mirrors channels.originate's parameters.
type OriginateRequest struct {
	Endpoint string
	App      string
	AppArgs  []string
	CallerID string
	Timeout  int
}

// RecordingRequest mirrors bridges.record's parameters.
type RecordingRequest struct {
	Name              string
	Format            string
	IfExists          string
	MaxDurationSecs   int
	TerminateOn       string
}

// Client is the production Adapter: REST commands over net/http with
// basic auth, events over a gorilla/websocket connection.
type Client struct {
	baseURL  string
	username string
	password string
	http     *http.Client
}

// NewClient builds a Client against an ARI base URL such as
// "http://asterisk.local:8088/ari".
func NewClient(baseURL, username, password string) *Client {
	return &Client{
		baseURL:  baseURL,
		username: username,
		password: password,
		http:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	var reader bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = *bytes.NewReader(b)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, &reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) Originate(ctx context.Context, req OriginateRequest) (*Channel, error) {
	q := url.Values{}
	q.Set("endpoint", req.Endpoint)
	q.Set("app", req.App)
	if len(req.AppArgs) > 0 {
		appArgs := req.AppArgs[0]
		for _, a := range req.AppArgs[1:] {
			appArgs += "," + a
		}
		q.Set("appArgs", appArgs)
	}
	if req.CallerID != "" {
		q.Set("callerId", req.CallerID)
	}
	if req.Timeout > 0 {
		q.Set("timeout", strconv.Itoa(req.Timeout))
	}

	var ch Channel
	if err := c.do(ctx, http.MethodPost, "/channels", q, nil, &ch); err != nil {
		return nil, err
	}
	return &ch, nil
}

func (c *Client) Answer(ctx context.Context, channelID string) error {
	return c.do(ctx, http.MethodPost, "/channels/"+channelID+"/answer", nil, nil, nil)
}

func (c *Client) Hangup(ctx context.Context, channelID string) error {
	return c.do(ctx, http.MethodDelete, "/channels/"+channelID, nil, nil, nil)
}

func (c *Client) CreateBridge(ctx context.Context, name string) (*Bridge, error) {
	q := url.Values{}
	q.Set("type", "mixing")
	q.Set("name", name)
	var b Bridge
	if err := c.do(ctx, http.MethodPost, "/bridges", q, nil, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (c *Client) AddChannelToBridge(ctx context.Context, bridgeID, channelID string) error {
	q := url.Values{}
	q.Set("channel", channelID)
	return c.do(ctx, http.MethodPost, "/bridges/"+bridgeID+"/addChannel", q, nil, nil)
}

func (c *Client) DestroyBridge(ctx context.Context, bridgeID string) error {
	return c.do(ctx, http.MethodDelete, "/bridges/"+bridgeID, nil, nil, nil)
}

func (c *Client) StartRecording(ctx context.Context, bridgeID string, req RecordingRequest) (*Recording, error) {
	q := url.Values{}
	q.Set("name", req.Name)
	q.Set("format", req.Format)
	if req.IfExists != "" {
		q.Set("ifExists", req.IfExists)
	}
	q.Set("maxDurationSeconds", strconv.Itoa(req.MaxDurationSecs))
	if req.TerminateOn != "" {
		q.Set("terminateOn", req.TerminateOn)
	}
	var rec Recording
	if err := c.do(ctx, http.MethodPost, "/bridges/"+bridgeID+"/record", q, nil, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *Client) StopRecordingViaBridge(ctx context.Context, bridgeID string) error {
	q := url.Values{}
	q.Set("media", "recording")
	return c.do(ctx, http.MethodPost, "/bridges/"+bridgeID+"/stopMedia", q, nil, nil)
}

func (c *Client) StopRecordingViaAPI(ctx context.Context, recordingName string) error {
	return c.do(ctx, http.MethodPost, "/recordings/live/"+recordingName+"/stop", nil, nil, nil)
}

// Start opens the event WebSocket and pumps frames into a Decoder,
// emitting normalized Events on the returned channel.
func (c *Client) Start(ctx context.Context, appName string) (<-chan Event, <-chan error, error) {
	wsURL, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing ARI URL: %w", err)
	}
	switch wsURL.Scheme {
	case "https":
		wsURL.Scheme = "wss"
	default:
		wsURL.Scheme = "ws"
	}
	wsURL.Path = wsURL.Path + "/events"
	q := wsURL.Query()
	q.Set("app", appName)
	q.Set("api_key", c.username+":"+c.password)
	q.Set("subscribeAll", "true")
	wsURL.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL.String(), nil)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting ARI event stream: %w", err)
	}

	frames := make(chan []byte, 64)
	errs := make(chan error, 1)
	events := make(chan Event, 64)
	outErrs := make(chan error, 1)

	go func() {
		defer close(frames)
		defer close(errs)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				errs <- err
				return
			}
			frames <- data
		}
	}()

	go func() {
		defer close(events)
		defer close(outErrs)
		defer conn.Close()
		dec := NewDecoder(frames, errs)
		for {
			evt, err, ok := dec.Next()
			if !ok {
				return
			}
			if err != nil {
				outErrs <- err
				return
			}
			select {
			case events <- evt:
			case <-ctx.Done():
				return
			}
		}
	}()

	return events, outErrs, nil
}
