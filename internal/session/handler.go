package session

import (
    "log"
    "net/http"
    "strings"
    "time"

    "github.com/google/uuid"
    ws "nhooyr.io/websocket"

    "carevoice/agent/internal/asr"
    "carevoice/agent/internal/auth"
    "carevoice/agent/internal/config"
    "carevoice/agent/internal/history"
    "carevoice/agent/internal/llm"
    "carevoice/agent/internal/manage"
    "carevoice/agent/internal/registry"
    "carevoice/agent/internal/tools"
    "carevoice/agent/internal/tts"
)

// Deps carries the process-wide collaborators every session shares.
type Deps struct {
    Registry *registry.Registry
    Manage   *manage.Client
    History  history.Store
    Model    llm.Model
    Tools    tools.Invoker
    ASR      asr.Provider
    Synth    func() tts.Synthesizer
}

// Handler upgrades device connections and runs one Session per socket.
type Handler struct {
    cfg  config.Config
    deps Deps
}

func NewHandler(cfg config.Config, deps Deps) *Handler {
    if deps.Synth == nil {
        deps.Synth = func() tts.Synthesizer {
            return tts.NewHTTPSynthesizer(cfg.TTS.BaseURL, cfg.TTS.APIKey, cfg.TTS.Voice)
        }
    }
    return &Handler{cfg: cfg, deps: deps}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
    deviceID := deviceIDFrom(r)
    clientID := r.Header.Get("Client-Id")
    clientIP := clientIPFrom(r)
    gateway := r.URL.Query().Get("from") == "gateway"

    if secret := h.cfg.Session.AuthSecret; secret != "" {
        token := bearerToken(r)
        if token == "" {
            http.Error(w, "missing bearer token", http.StatusUnauthorized)
            return
        }
        if _, _, err := auth.ValidateDeviceToken(secret, token, deviceID, time.Now(), 30); err != nil {
            log.Printf("[session] device %s token rejected: %v", deviceID, err)
            http.Error(w, "invalid token", http.StatusUnauthorized)
            return
        }
    }

    c, err := ws.Accept(w, r, nil)
    if err != nil {
        log.Printf("[session] ws accept: %v", err)
        return
    }

    s := newSession(h.cfg, h.deps, c, deviceID, clientID, clientIP, gateway)
    s.run(r.Context())
}

func deviceIDFrom(r *http.Request) string {
    if v := r.Header.Get("Device-Id"); v != "" {
        return v
    }
    if v := r.URL.Query().Get("device_id"); v != "" {
        return v
    }
    // Anonymous device: usable, but never bindable.
    return "anon-" + uuid.NewString()
}

func clientIPFrom(r *http.Request) string {
    if v := r.Header.Get("X-Real-Ip"); v != "" {
        return v
    }
    if v := r.Header.Get("X-Forwarded-For"); v != "" {
        if i := strings.IndexByte(v, ','); i >= 0 {
            return strings.TrimSpace(v[:i])
        }
        return v
    }
    host := r.RemoteAddr
    if i := strings.LastIndexByte(host, ':'); i >= 0 {
        host = host[:i]
    }
    return host
}

func bearerToken(r *http.Request) string {
    authz := r.Header.Get("Authorization")
    if strings.HasPrefix(authz, "Bearer ") {
        return strings.TrimPrefix(authz, "Bearer ")
    }
    // Devices that cannot set headers pass the token in the query string.
    return r.URL.Query().Get("token")
}
