package auth

import (
    "crypto/hmac"
    "crypto/sha256"
    "encoding/base64"
    "encoding/hex"
    "errors"
    "strconv"
    "strings"
    "time"
)

var (
    ErrTokenFormat = errors.New("invalid token format")
    ErrTokenSig    = errors.New("invalid token signature")
    ErrTokenExp    = errors.New("token expired or not yet valid")
    ErrTokenDevice = errors.New("device id mismatch")
)

// GenerateDeviceToken builds a bearer token a device presents on the websocket
// upgrade. Format: base64url(device_id + "." + exp_unix + "." + hex(hmac_sha256(secret, device_id+"."+exp)))
func GenerateDeviceToken(secret, deviceID string, expUnix int64) string {
    msg := deviceID + "." + strconv.FormatInt(expUnix, 10)
    mac := hmac.New(sha256.New, []byte(secret))
    mac.Write([]byte(msg))
    sig := hex.EncodeToString(mac.Sum(nil))
    return base64.RawURLEncoding.EncodeToString([]byte(msg + "." + sig))
}

// ValidateDeviceToken parses and validates the token, returning the embedded
// device id and expiry.
func ValidateDeviceToken(secret, token, expectDeviceID string, now time.Time, skewSeconds int) (string, int64, error) {
    b, err := base64.RawURLEncoding.DecodeString(token)
    if err != nil {
        return "", 0, ErrTokenFormat
    }
    parts := strings.Split(string(b), ".")
    if len(parts) != 3 {
        return "", 0, ErrTokenFormat
    }
    dev := parts[0]
    expStr := parts[1]
    sigHex := parts[2]
    exp, err := strconv.ParseInt(expStr, 10, 64)
    if err != nil {
        return "", 0, ErrTokenFormat
    }
    if expectDeviceID != "" && dev != expectDeviceID {
        return "", 0, ErrTokenDevice
    }
    msg := dev + "." + expStr
    mac := hmac.New(sha256.New, []byte(secret))
    mac.Write([]byte(msg))
    want := mac.Sum(nil)
    got, err := hex.DecodeString(sigHex)
    if err != nil {
        return "", 0, ErrTokenFormat
    }
    if !hmac.Equal(want, got) {
        return "", 0, ErrTokenSig
    }
    if now.Unix() > exp+int64(skewSeconds) {
        return "", 0, ErrTokenExp
    }
    return dev, exp, nil
}
