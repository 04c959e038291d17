// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package handoff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xcherryio/creditbridge/config"
)

func TestJsonWireFormat(t *testing.T) {
	codecs, err := NewCodecs()
	require.NoError(t, err)
	codec, err := codecs.ForEncoding(config.EncodingJSON)
	require.NoError(t, err)

	data, err := codec.Marshal(NewMessage("T1", "P1", 5))
	require.NoError(t, err)
	assert.JSONEq(t, `{"taskId":"T1","processInstanceId":"P1","defaultScore":5}`, string(data))

	msg, err := codecs.Decode("", []byte(`{"taskId":"T1","processInstanceId":"P1","defaultScore":5,"creditScores":[3,7]}`))
	require.NoError(t, err)
	assert.Equal(t, []int{3, 7}, msg.CreditScores)
}

func TestCborCodec(t *testing.T) {
	codecs, err := NewCodecs()
	require.NoError(t, err)
	codec, err := codecs.ForEncoding(config.EncodingCBOR)
	require.NoError(t, err)
	assert.Equal(t, ContentTypeCBOR, codec.ContentType())

	in := NewMessage("T1", "P1", 5).WithCreditScores([]int{3, 7, 2, 8})
	data, err := codec.Marshal(in)
	require.NoError(t, err)
	out, err := codecs.Decode(ContentTypeCBOR, data)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestDecodeErrors(t *testing.T) {
	codecs, err := NewCodecs()
	require.NoError(t, err)

	_, err = codecs.Decode("text/plain", []byte("T1"))
	assert.Error(t, err)
	_, err = codecs.Decode(ContentTypeJSON, []byte("{not json"))
	assert.Error(t, err)
	_, err = codecs.Decode(ContentTypeJSON, []byte(`{"defaultScore":5}`))
	assert.Error(t, err)
	_, err = codecs.ForEncoding("xml")
	assert.Error(t, err)
}

func TestWithCreditScoresCopies(t *testing.T) {
	scores := []int{3, 7, 2, 8}
	original := NewMessage("T1", "P1", 5)
	withScores := original.WithCreditScores(scores)
	scores[0] = 10

	assert.Nil(t, original.CreditScores)
	assert.Equal(t, []int{3, 7, 2, 8}, withScores.CreditScores)
	assert.Equal(t, "T1", withScores.Key())
}
