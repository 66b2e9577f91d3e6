package manage

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "io"
    "net/http"
    "net/url"
    "strings"
    "time"
)

// ErrDeviceNotFound means the manage API has never seen this device.
var ErrDeviceNotFound = errors.New("device not found")

// BindError carries the short code a user types (or reads out) in the manage
// console to claim the device.
type BindError struct {
    Code string
}

func (e *BindError) Error() string {
    return fmt.Sprintf("device awaiting binding, code %s", e.Code)
}

// DeviceConfig is the per-device private configuration the manage API hands
// out once a device is bound.
type DeviceConfig struct {
    UserID       string `json:"user_id"`
    Prompt       string `json:"prompt"`
    VoiceID      string `json:"voice_id"`
    Language     string `json:"language"`
    SaveHistory  bool   `json:"save_history"`
    FunctionCall bool   `json:"function_call"`
}

// Reminder is one scheduled announcement due for delivery.
type Reminder struct {
    ID      string `json:"id"`
    UserID  string `json:"user_id"`
    Title   string `json:"title"`
    Content string `json:"content"`
}

// Client talks to the elder-care manage API.
type Client struct {
    base   string
    secret string
    httpc  *http.Client
}

func NewClient(base, secret string) *Client {
    return &Client{
        base:   strings.TrimRight(base, "/"),
        secret: secret,
        httpc:  &http.Client{Timeout: 10 * time.Second},
    }
}

// Enabled reports whether a manage API is configured at all. Without one,
// every device is treated as bound with defaults.
func (c *Client) Enabled() bool { return c != nil && c.base != "" }

// DeviceConfig resolves a device to its private config. A 404 maps to
// ErrDeviceNotFound; a 403 carrying a bind code maps to *BindError.
func (c *Client) DeviceConfig(ctx context.Context, deviceID, clientID string) (*DeviceConfig, error) {
    q := url.Values{}
    q.Set("device_id", deviceID)
    if clientID != "" {
        q.Set("client_id", clientID)
    }
    req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/agent/device-config?"+q.Encode(), nil)
    if err != nil {
        return nil, err
    }
    c.authorize(req)
    resp, err := c.httpc.Do(req)
    if err != nil {
        return nil, err
    }
    defer resp.Body.Close()

    switch resp.StatusCode {
    case http.StatusOK:
        var cfg DeviceConfig
        if err := json.NewDecoder(resp.Body).Decode(&cfg); err != nil {
            return nil, fmt.Errorf("decode device config: %w", err)
        }
        return &cfg, nil
    case http.StatusNotFound:
        return nil, ErrDeviceNotFound
    case http.StatusForbidden:
        var body struct {
            BindCode string `json:"bind_code"`
        }
        _ = json.NewDecoder(resp.Body).Decode(&body)
        return nil, &BindError{Code: body.BindCode}
    default:
        b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
        return nil, fmt.Errorf("manage api status=%d body=%s", resp.StatusCode, string(b))
    }
}

// DueReminders lists reminders whose scheduled time has passed and which have
// not yet been announced.
func (c *Client) DueReminders(ctx context.Context) ([]Reminder, error) {
    req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/agent/reminders/due", nil)
    if err != nil {
        return nil, err
    }
    c.authorize(req)
    resp, err := c.httpc.Do(req)
    if err != nil {
        return nil, err
    }
    defer resp.Body.Close()
    if resp.StatusCode != http.StatusOK {
        return nil, fmt.Errorf("manage api status=%d", resp.StatusCode)
    }
    var out []Reminder
    if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
        return nil, err
    }
    return out, nil
}

// MarkAnnounced records that a reminder was spoken to the user so it is not
// re-delivered on the next tick.
func (c *Client) MarkAnnounced(ctx context.Context, reminderID string) error {
    req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/agent/reminders/"+reminderID+"/announced", nil)
    if err != nil {
        return err
    }
    c.authorize(req)
    resp, err := c.httpc.Do(req)
    if err != nil {
        return err
    }
    resp.Body.Close()
    if resp.StatusCode/100 != 2 {
        return fmt.Errorf("manage api status=%d", resp.StatusCode)
    }
    return nil
}

func (c *Client) authorize(req *http.Request) {
    if c.secret != "" {
        req.Header.Set("Authorization", "Bearer "+c.secret)
    }
}
