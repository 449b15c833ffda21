package boltstore

import (
	"bytes"
	"encoding/gob"

	"github.com/crystal-mush/mushpost/pkg/gamedb"
)

func init() {
	gob.Register(gamedb.Object{})
	gob.Register(gamedb.Message{})
	gob.Register(gamedb.Tag{})
	gob.Register(gamedb.ReadLock{})
	gob.Register(gamedb.Envelope{})
	gob.Register(gamedb.MaterialGrant{})
}

// encodeObject serializes an Object to bytes using gob.
func encodeObject(obj *gamedb.Object) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(obj); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeObject deserializes bytes back into an Object.
func decodeObject(data []byte) (*gamedb.Object, error) {
	var obj gamedb.Object
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&obj); err != nil {
		return nil, err
	}
	if obj.Attrs == nil {
		obj.Attrs = make(map[string]string)
	}
	return &obj, nil
}

// encodeMessage serializes a Message to bytes using gob.
func encodeMessage(m *gamedb.Message) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeMessage deserializes bytes back into a Message.
func decodeMessage(data []byte) (*gamedb.Message, error) {
	var m gamedb.Message
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&m); err != nil {
		return nil, err
	}
	return &m, nil
}

// encodeEnvelopes serializes a pending queue.
func encodeEnvelopes(envs []gamedb.Envelope) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(envs); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeEnvelopes deserializes a pending queue.
func decodeEnvelopes(data []byte) ([]gamedb.Envelope, error) {
	var envs []gamedb.Envelope
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&envs); err != nil {
		return nil, err
	}
	return envs, nil
}
