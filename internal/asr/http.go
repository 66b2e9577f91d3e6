package asr

import (
    "bytes"
    "context"
    "encoding/json"
    "fmt"
    "io"
    "net/http"
    "net/url"
    "strings"
    "time"
)

// HTTPProvider posts raw PCM16 audio to a recognition endpoint and decodes
// the JSON result.
type HTTPProvider struct {
    baseURL string
    apiKey  string
    model   string
    httpc   *http.Client
}

func NewHTTPProvider(baseURL, apiKey, model string) *HTTPProvider {
    return &HTTPProvider{
        baseURL: strings.TrimRight(baseURL, "/"),
        apiKey:  apiKey,
        model:   model,
        httpc:   &http.Client{Timeout: 30 * time.Second},
    }
}

func (p *HTTPProvider) Transcribe(ctx context.Context, audio []byte) (Result, error) {
    q := url.Values{}
    q.Set("model", p.model)
    q.Set("encoding", "linear16")
    q.Set("sample_rate", "16000")

    req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/recognize?"+q.Encode(), bytes.NewReader(audio))
    if err != nil {
        return Result{}, err
    }
    req.Header.Set("Authorization", "Bearer "+p.apiKey)
    req.Header.Set("Content-Type", "application/octet-stream")

    resp, err := p.httpc.Do(req)
    if err != nil {
        return Result{}, err
    }
    defer resp.Body.Close()
    if resp.StatusCode/100 != 2 {
        b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
        return Result{}, fmt.Errorf("asr status=%d body=%s", resp.StatusCode, string(b))
    }

    var body struct {
        Text     string `json:"text"`
        Speaker  string `json:"speaker"`
        Language string `json:"language"`
    }
    if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
        return Result{}, fmt.Errorf("decode asr response: %w", err)
    }
    return Result{Text: body.Text, Speaker: body.Speaker, Language: body.Language}, nil
}
