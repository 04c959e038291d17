// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package handoff

import (
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/xcherryio/creditbridge/config"
)

const (
	// ContentTypeProperty is the message property naming the codec of the payload
	ContentTypeProperty = "content-type"

	ContentTypeJSON = "application/json"
	ContentTypeCBOR = "application/cbor"
)

type Codec interface {
	ContentType() string
	Marshal(msg Message) ([]byte, error)
	Unmarshal(data []byte) (Message, error)
}

type jsonCodec struct{}

func (jsonCodec) ContentType() string {
	return ContentTypeJSON
}

func (jsonCodec) Marshal(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

func (jsonCodec) Unmarshal(data []byte) (Message, error) {
	var msg Message
	err := json.Unmarshal(data, &msg)
	return msg, err
}

type cborCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

func newCborCodec() (Codec, error) {
	enc, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return nil, err
	}
	dec, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		return nil, err
	}
	return cborCodec{enc: enc, dec: dec}, nil
}

func (c cborCodec) ContentType() string {
	return ContentTypeCBOR
}

func (c cborCodec) Marshal(msg Message) ([]byte, error) {
	return c.enc.Marshal(msg)
}

func (c cborCodec) Unmarshal(data []byte) (Message, error) {
	var msg Message
	err := c.dec.Unmarshal(data, &msg)
	return msg, err
}

// Codecs resolves the codec of an incoming message by its content type.
// A message without the property is JSON.
type Codecs struct {
	byType map[string]Codec
}

func NewCodecs() (*Codecs, error) {
	cborC, err := newCborCodec()
	if err != nil {
		return nil, err
	}
	return &Codecs{
		byType: map[string]Codec{
			ContentTypeJSON: jsonCodec{},
			ContentTypeCBOR: cborC,
		},
	}, nil
}

// ForEncoding returns the codec of the configured encoding, json or cbor
func (c *Codecs) ForEncoding(encoding string) (Codec, error) {
	switch encoding {
	case "", config.EncodingJSON:
		return c.byType[ContentTypeJSON], nil
	case config.EncodingCBOR:
		return c.byType[ContentTypeCBOR], nil
	}
	return nil, fmt.Errorf("unsupported handoff encoding %v", encoding)
}

func (c *Codecs) Decode(contentType string, data []byte) (Message, error) {
	if contentType == "" {
		contentType = ContentTypeJSON
	}
	codec, ok := c.byType[contentType]
	if !ok {
		return Message{}, fmt.Errorf("unsupported content type %v", contentType)
	}
	msg, err := codec.Unmarshal(data)
	if err != nil {
		return Message{}, fmt.Errorf("malformed handoff message: %w", err)
	}
	return msg, msg.Validate()
}
