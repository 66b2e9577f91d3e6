package protocol

import (
    "encoding/binary"
    "encoding/json"
    "errors"
)

// ClientMessage is any JSON text frame sent by the device.
type ClientMessage struct {
    Type    string `json:"type"`
    // hello
    Version     int            `json:"version,omitempty"`
    AudioFormat string         `json:"audio_format,omitempty"`
    Features    map[string]any `json:"features,omitempty"`
    // listen
    State string `json:"state,omitempty"` // start | stop | detect
    Mode  string `json:"mode,omitempty"`  // auto | manual
    // listen detect / chat
    Text string `json:"text,omitempty"`
}

// ServerMessage is any JSON text frame sent to the device.
type ServerMessage struct {
    Type      string `json:"type"`
    SessionID string `json:"session_id,omitempty"`
    State     string `json:"state,omitempty"`
    Text      string `json:"text,omitempty"`
    Emotion   string `json:"emotion,omitempty"`
}

func ParseClient(data []byte) (ClientMessage, error) {
    var m ClientMessage
    err := json.Unmarshal(data, &m)
    return m, err
}

func Marshal(m ServerMessage) []byte {
    b, _ := json.Marshal(m)
    return b
}

// GatewayHeaderSize is the fixed prefix on binary frames arriving through the
// MQTT gateway path.
const GatewayHeaderSize = 16

var ErrShortFrame = errors.New("frame shorter than gateway header")

// GatewayFrame is one gateway-path audio packet after header decode.
type GatewayFrame struct {
    Timestamp uint32
    Payload   []byte
}

// ParseGatewayFrame decodes the 16-byte header: a big-endian timestamp at
// bytes 8..12 and a big-endian payload length at bytes 12..16. A zero or
// oversized length falls back to "everything after the header".
func ParseGatewayFrame(frame []byte) (GatewayFrame, error) {
    if len(frame) < GatewayHeaderSize {
        return GatewayFrame{}, ErrShortFrame
    }
    ts := binary.BigEndian.Uint32(frame[8:12])
    n := binary.BigEndian.Uint32(frame[12:16])
    body := frame[GatewayHeaderSize:]
    if n > 0 && int(n) <= len(body) {
        body = body[:n]
    }
    return GatewayFrame{Timestamp: ts, Payload: body}, nil
}

// Server message constructors used across session and synthesis.

func Hello(sessionID string) ServerMessage {
    return ServerMessage{Type: "hello", SessionID: sessionID}
}

func STTResult(sessionID, text string) ServerMessage {
    return ServerMessage{Type: "stt", SessionID: sessionID, Text: text}
}

func LLMEmotion(sessionID, emotion string) ServerMessage {
    return ServerMessage{Type: "llm", SessionID: sessionID, Emotion: emotion}
}

func TTSStart(sessionID string) ServerMessage {
    return ServerMessage{Type: "tts", SessionID: sessionID, State: "start"}
}

func TTSSentenceStart(sessionID, text string) ServerMessage {
    return ServerMessage{Type: "tts", SessionID: sessionID, State: "sentence_start", Text: text}
}

func TTSStop(sessionID string) ServerMessage {
    return ServerMessage{Type: "tts", SessionID: sessionID, State: "stop"}
}
