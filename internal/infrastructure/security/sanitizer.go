package security

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"
)

const redactedValue = "[REDACTED]"

var sensitiveHeaders = map[string]bool{
	"authorization":       true,
	"proxy-authorization": true,
	"cookie":              true,
	"set-cookie":          true,
	"x-api-key":           true,
}

// sensitiveSuffixes match JSON keys and query parameters case-insensitively, so SessionID,
// Password, ClientSecret and access_token are all covered.
var sensitiveSuffixes = []string{
	"password",
	"sessionid",
	"secret",
	"token",
	"apikey",
	"api_key",
	"credential",
	"authorization",
	"private_key",
}

// attachmentKeys hold base64 payloads that are summarized instead of logged.
var attachmentKeys = map[string]bool{
	"content": true,
}

func isSensitive(key string) bool {
	lower := strings.ToLower(key)
	for _, suffix := range sensitiveSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}

// SanitizeHeaders returns a copy of headers with credentials redacted and multiple values joined.
func SanitizeHeaders(headers http.Header) map[string]string {
	sanitized := make(map[string]string, len(headers))
	for key, values := range headers {
		if sensitiveHeaders[strings.ToLower(key)] {
			sanitized[key] = redactedValue
			continue
		}
		sanitized[key] = strings.Join(values, ", ")
	}
	return sanitized
}

// SanitizeBody prepares a request or response body for logging and audit storage.
// JSON bodies have sensitive fields redacted and attachment contents summarized; gzip is
// inflated; non-UTF-8 data is base64 wrapped; bodies above maxSize are truncated.
func SanitizeBody(body []byte, maxSize int) json.RawMessage {
	if len(body) == 0 {
		return nil
	}

	if len(body) >= 2 && body[0] == 0x1f && body[1] == 0x8b {
		inflated, err := gunzip(body)
		if err != nil {
			return wrapBinary(body, "gzip-compressed (decompression failed)")
		}
		body = inflated
	}

	if !utf8.Valid(body) {
		return wrapBinary(body, "binary (non-UTF8)")
	}

	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		return truncateOrWrap(body, maxSize)
	}

	result, err := json.Marshal(sanitizeValue(data, ""))
	if err != nil {
		return truncateOrWrap(body, maxSize)
	}
	if maxSize > 0 && len(result) > maxSize {
		return marshalMeta(map[string]any{
			"_truncated": true,
			"_size":      len(result),
			"_preview":   string(result[:maxSize]),
		})
	}
	return result
}

func truncateOrWrap(body []byte, maxSize int) json.RawMessage {
	if maxSize > 0 && len(body) > maxSize {
		return marshalMeta(map[string]any{
			"_truncated": true,
			"_size":      len(body),
			"_preview":   string(body[:maxSize]),
		})
	}
	return marshalMeta(map[string]any{
		"_raw":    string(body),
		"_format": "text",
	})
}

func gunzip(data []byte) ([]byte, error) {
	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return io.ReadAll(reader)
}

func wrapBinary(data []byte, format string) json.RawMessage {
	return marshalMeta(map[string]any{
		"_binary": true,
		"_format": format,
		"_size":   len(data),
		"_base64": base64.StdEncoding.EncodeToString(data),
	})
}

func marshalMeta(m map[string]any) json.RawMessage {
	result, _ := json.Marshal(m)
	return result
}

// sanitizeValue walks a decoded JSON value. parent is the key holding v, used to recognize
// attachment objects inside an "Attachment" array.
func sanitizeValue(v any, parent string) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		inAttachment := strings.EqualFold(parent, "attachment") || strings.EqualFold(parent, "attachments")
		for key, value := range val {
			switch {
			case isSensitive(key):
				out[key] = redactedValue
			case inAttachment && attachmentKeys[strings.ToLower(key)]:
				out[key] = summarizeContent(value)
			default:
				out[key] = sanitizeValue(value, key)
			}
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, value := range val {
			out[i] = sanitizeValue(value, parent)
		}
		return out
	default:
		return val
	}
}

func summarizeContent(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	return map[string]any{"_omitted": true, "_base64_length": len(s)}
}

// SanitizeURL redacts the values of sensitive query parameters, e.g. the SessionID OTRS
// expects on GET requests. Parameter order is preserved.
func SanitizeURL(rawURL string) string {
	base, query, found := strings.Cut(rawURL, "?")
	if !found || query == "" {
		return rawURL
	}

	params := strings.Split(query, "&")
	for i, param := range params {
		name, _, hasValue := strings.Cut(param, "=")
		decoded, err := url.QueryUnescape(name)
		if err != nil {
			decoded = name
		}
		if hasValue && isSensitive(decoded) {
			params[i] = name + "=" + redactedValue
		}
	}
	return base + "?" + strings.Join(params, "&")
}
