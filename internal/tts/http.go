package tts

import (
    "bytes"
    "context"
    "encoding/json"
    "fmt"
    "io"
    "net/http"
    "time"
)

// HTTPSynthesizer speaks through a non-streaming REST synthesis endpoint:
// POST {base}/v1/text-to-speech/{voice} with a JSON body, audio bytes back.
type HTTPSynthesizer struct {
    baseURL string
    apiKey  string
    voice   string
    client  *http.Client
}

func NewHTTPSynthesizer(baseURL, apiKey, voice string) *HTTPSynthesizer {
    return &HTTPSynthesizer{
        baseURL: baseURL,
        apiKey:  apiKey,
        voice:   voice,
        client:  &http.Client{Timeout: 30 * time.Second},
    }
}

// SetVoice switches the voice for subsequent sentences. Per-device voice
// overrides arrive with the device profile after binding.
func (h *HTTPSynthesizer) SetVoice(voice string) {
    if voice != "" {
        h.voice = voice
    }
}

func (h *HTTPSynthesizer) Speak(ctx context.Context, text string) ([]byte, error) {
    url := fmt.Sprintf("%s/v1/text-to-speech/%s", h.baseURL, h.voice)
    body, _ := json.Marshal(map[string]any{"text": text})
    req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
    if err != nil {
        return nil, err
    }
    req.Header.Set("xi-api-key", h.apiKey)
    req.Header.Set("accept", "audio/wav")
    req.Header.Set("content-type", "application/json")
    resp, err := h.client.Do(req)
    if err != nil {
        return nil, err
    }
    defer resp.Body.Close()
    if resp.StatusCode/100 != 2 {
        b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
        return nil, fmt.Errorf("tts: status=%d body=%s", resp.StatusCode, string(b))
    }
    return io.ReadAll(resp.Body)
}
