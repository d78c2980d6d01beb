package encoding

import (
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// ProtobufEncoder encodes frames as a google.protobuf.Struct message so
// consumers can decode them with any protobuf runtime and no shared schema.
// Timestamps are carried as RFC 3339 strings.
type ProtobufEncoder struct{}

func NewProtobufEncoder() *ProtobufEncoder {
	return &ProtobufEncoder{}
}

func (e *ProtobufEncoder) Encode(frame Frame) ([]byte, error) {
	if err := checkFrame(frame); err != nil {
		return nil, err
	}
	msg, err := toStruct(frame)
	if err != nil {
		return nil, err
	}
	return proto.Marshal(msg)
}

func (e *ProtobufEncoder) ContentType() string {
	return "application/x-protobuf"
}

func (e *ProtobufEncoder) Binary() bool {
	return true
}

// DecodeProtobuf parses bytes produced by ProtobufEncoder into a generic map
func DecodeProtobuf(data []byte) (map[string]any, error) {
	var msg structpb.Struct
	if err := proto.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal frame: %w", err)
	}
	return msg.AsMap(), nil
}

func toStruct(frame Frame) (*structpb.Struct, error) {
	fields := map[string]any{
		"type":     string(frame.Type),
		"sequence": float64(frame.Sequence),
		"sentAt":   frame.SentAt.UTC().Format(time.RFC3339Nano),
	}

	var body any
	key := string(frame.Type)
	switch frame.Type {
	case FrameReading:
		body = frame.Reading
	case FrameAlert:
		body = frame.Alert
	}

	// structpb only accepts plain JSON values, so round-trip through encoding/json
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	var plain map[string]any
	if err := json.Unmarshal(raw, &plain); err != nil {
		return nil, fmt.Errorf("failed to convert %s: %w", key, err)
	}
	fields[key] = plain

	msg, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to build protobuf frame: %w", err)
	}
	return msg, nil
}
