package mqtt

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"unicode/utf8"

	"github.com/dukex/microred/pkg/channels"
	"github.com/dukex/microred/pkg/models"
)

// Inbound payload formats.
const (
	FormatAutoDetect = "auto-detect"
	FormatAuto       = "auto"
	FormatBuffer     = "buffer"
	FormatUTF8       = "utf8"
	FormatJSON       = "json"
	FormatBase64     = "base64"
)

var (
	ErrUnknownFormat = errors.New("unknown payload format")
	ErrInvalidJSON   = errors.New("ignoring invalid JSON")
	ErrNoTopic       = errors.New("no topic to publish to")
)

// KnownFormat reports whether Decode understands format.
func KnownFormat(format string) bool {
	switch format {
	case FormatAutoDetect, FormatAuto, FormatBuffer, FormatUTF8, FormatJSON, FormatBase64:
		return true
	}

	return false
}

// Decode turns a raw payload into a message payload. Buffers are copied so
// subscribers never share bytes.
func Decode(format string, payload []byte) (any, error) {
	switch format {
	case FormatBuffer:
		return bytes.Clone(payload), nil
	case FormatUTF8:
		return string(payload), nil
	case FormatBase64:
		return base64.StdEncoding.EncodeToString(payload), nil
	case FormatJSON:
		var value any
		if err := json.Unmarshal(payload, &value); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidJSON, err)
		}

		return value, nil
	case FormatAutoDetect:
		if looksStructured(payload) && json.Valid(payload) {
			var value any
			if err := json.Unmarshal(payload, &value); err == nil {
				return value, nil
			}
		}

		return Decode(FormatAuto, payload)
	case FormatAuto:
		if utf8.Valid(payload) {
			return string(payload), nil
		}

		return bytes.Clone(payload), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, format)
	}
}

// looksStructured reports whether payload starts like a JSON object or array.
// Bare numbers, booleans and strings stay text.
func looksStructured(payload []byte) bool {
	trimmed := bytes.TrimLeft(payload, " \t\r\n")

	return len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[')
}

// Encode renders a message payload for the wire: bytes as they are, strings as
// text, structured values as JSON and anything else in its printed form.
func Encode(payload any) ([]byte, error) {
	switch value := payload.(type) {
	case []byte:
		return value, nil
	case string:
		return []byte(value), nil
	case map[string]any, []any:
		return json.Marshal(value)
	case json.Marshaler:
		return value.MarshalJSON()
	default:
		return []byte(fmt.Sprint(value)), nil
	}
}

// FrameDefaults override the message fields when set.
type FrameDefaults struct {
	Topic  string
	QoS    *byte
	Retain *bool
}

// FrameFromMessage builds the frame published for msg. A message without a
// payload is not published.
func FrameFromMessage(msg *models.Message, defaults FrameDefaults) (channels.Frame, bool, error) {
	payload, ok := msg.Get(models.FieldPayload)
	if !ok || payload == nil {
		return channels.Frame{}, false, nil
	}

	data, err := Encode(payload)
	if err != nil {
		return channels.Frame{}, false, err
	}

	frame := channels.Frame{
		Topic:   defaults.Topic,
		Payload: data,
	}

	if frame.Topic == "" {
		frame.Topic = msg.Topic()
	}

	if frame.Topic == "" {
		return channels.Frame{}, false, ErrNoTopic
	}

	if defaults.QoS != nil {
		frame.QoS = *defaults.QoS
	} else {
		frame.QoS = parseQoS(msg.Fields()[models.FieldQoS])
	}

	if defaults.Retain != nil {
		frame.Retain = *defaults.Retain
	} else {
		frame.Retain, _ = msg.Fields()[models.FieldRetain].(bool)
	}

	return frame, true, nil
}

func parseQoS(value any) byte {
	var qos int

	switch v := value.(type) {
	case int:
		qos = v
	case int64:
		qos = int(v)
	case float64:
		qos = int(v)
	case string:
		qos, _ = strconv.Atoi(v)
	}

	if qos < 0 || qos > 2 {
		return 0
	}

	return byte(qos)
}
