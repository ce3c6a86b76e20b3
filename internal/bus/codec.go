package bus

import (
	"encoding/json"
	"fmt"
)

// Envelope is the wire form of an event: {"type": name, "data": payload}.
type Envelope struct {
	Type Name            `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Encode wraps ev in an envelope.
func Encode(ev Event) (*Envelope, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", ev.Name(), err)
	}
	return &Envelope{Type: ev.Name(), Data: data}, nil
}

// Decode turns a wire envelope back into its concrete event kind.
func Decode(name Name, data json.RawMessage) (Event, error) {
	switch name {
	case NameConfigFetch:
		return decodeAs[ConfigFetch](data)
	case NameConfigUpdate:
		return decodeAs[ConfigUpdate](data)
	case NameConfigData:
		return decodeAs[ConfigData](data)
	case NameStorageFetchMessages:
		return decodeAs[StorageFetchMessages](data)
	case NameStorageRecordMessages:
		return decodeAs[StorageRecordMessages](data)
	case NameStorageFetchDialogs:
		return decodeAs[StorageFetchDialogs](data)
	case NameStorageRecordDialogs:
		return decodeAs[StorageRecordDialogs](data)
	case NameStorageSearchMessages:
		return decodeAs[StorageSearchMessages](data)
	case NameStorageFetchMessageContext:
		return decodeAs[StorageFetchMessageContext](data)
	case NameStorageMessages:
		return decodeAs[StorageMessages](data)
	case NameStorageDialogs:
		return decodeAs[StorageDialogs](data)
	case NameStorageSearchMessagesData:
		return decodeAs[StorageSearchMessagesData](data)
	case NameStorageMessagesContext:
		return decodeAs[StorageMessagesContext](data)
	case NameGramMessageReceived:
		return decodeAs[GramMessageReceived](data)
	case NameEntityMeData:
		return decodeAs[EntityMeData](data)
	case NameAuthLogin:
		return decodeAs[AuthLogin](data)
	case NameAuthLogout:
		return decodeAs[AuthLogout](data)
	case NameAuthConnected:
		return decodeAs[AuthConnected](data)
	case NameServerConnected:
		return decodeAs[ServerConnected](data)
	case NameServerEventRegister:
		return decodeAs[ServerEventRegister](data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, name)
	}
}

// DecodeEnvelope decodes a raw {"type","data"} frame.
func DecodeEnvelope(raw []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	return Decode(env.Type, env.Data)
}

func decodeAs[E Event](data json.RawMessage) (Event, error) {
	var e E
	if len(data) > 0 && string(data) != "null" {
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("decode %s: %w", e.Name(), err)
		}
	}
	return e, nil
}
