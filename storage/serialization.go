// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	com "github.com/mus-format/common-go"
	"github.com/mus-format/mus-go"
	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/gpthistory/core"
)

// rowFormatVersion is written as the first byte of every encoded row.
const rowFormatVersion = 1

var (
	// IndexRowMUS encodes an IndexRow as chat id, text and embeddings.
	IndexRowMUS = indexRowMUS{}

	// IndexMetadataMUS encodes IndexMetadata as model, dimensions and a
	// microsecond timestamp.
	IndexMetadataMUS = indexMetadataMUS{}

	embeddingsMUS = ord.NewSliceSer[float32](raw.Float32)
)

// MarshalSeq serializes a sequence number to 8 big-endian bytes.
func MarshalSeq(seq uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, seq)
	return buf
}

// UnmarshalSeq deserializes a sequence number written by MarshalSeq.
func UnmarshalSeq(data []byte) (uint64, error) {
	if len(data) < 8 {
		return 0, ErrTruncatedData
	}
	return binary.BigEndian.Uint64(data), nil
}

// MarshalIndexRow serializes an IndexRow to bytes, prefixed with the format
// version.
func MarshalIndexRow(row *core.IndexRow) []byte {
	buf := make([]byte, 1+IndexRowMUS.Size(*row))
	buf[0] = rowFormatVersion
	IndexRowMUS.Marshal(*row, buf[1:])
	return buf
}

// UnmarshalIndexRow deserializes an IndexRow written by MarshalIndexRow.
func UnmarshalIndexRow(data []byte) (*core.IndexRow, error) {
	body, err := versionedBody(data)
	if err != nil {
		return nil, err
	}
	row, n, err := IndexRowMUS.Unmarshal(body)
	if err != nil {
		return nil, codecError(err)
	}
	if n != len(body) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrSerializationFailed, len(body)-n)
	}
	return &row, nil
}

// MarshalMetadata serializes IndexMetadata to bytes.
func MarshalMetadata(meta *IndexMetadata) []byte {
	buf := make([]byte, 1+IndexMetadataMUS.Size(*meta))
	buf[0] = rowFormatVersion
	IndexMetadataMUS.Marshal(*meta, buf[1:])
	return buf
}

// UnmarshalMetadata deserializes IndexMetadata written by MarshalMetadata.
func UnmarshalMetadata(data []byte) (*IndexMetadata, error) {
	body, err := versionedBody(data)
	if err != nil {
		return nil, err
	}
	meta, _, err := IndexMetadataMUS.Unmarshal(body)
	if err != nil {
		return nil, codecError(err)
	}
	return &meta, nil
}

func versionedBody(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrTruncatedData
	}
	if data[0] != rowFormatVersion {
		return nil, fmt.Errorf("%w: unknown format version %d", ErrSerializationFailed, data[0])
	}
	return data[1:], nil
}

// codecError maps mus errors onto the storage sentinels.
func codecError(err error) error {
	if errors.Is(err, mus.ErrTooSmallByteSlice) {
		return fmt.Errorf("%w: %w", ErrTruncatedData, err)
	}
	return fmt.Errorf("%w: %w", ErrSerializationFailed, err)
}

type indexRowMUS struct{}

func (indexRowMUS) Marshal(row core.IndexRow, bs []byte) (n int) {
	n = ord.String.Marshal(row.ChatID, bs)
	n += ord.String.Marshal(row.Text, bs[n:])
	n += embeddingsMUS.Marshal(row.Embeddings, bs[n:])
	return
}

func (indexRowMUS) Unmarshal(bs []byte) (row core.IndexRow, n int, err error) {
	var n1 int
	row.ChatID, n, err = ord.String.Unmarshal(bs)
	if err != nil {
		return
	}
	row.Text, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}

	// The slice serializer allocates the decoded length up front, so a
	// corrupt length must not get past this check.
	length, n1, err := varint.PositiveInt.Unmarshal(bs[n:])
	if err != nil {
		return
	}
	if length < 0 {
		err = com.ErrNegativeLength
		return
	}
	if length > (len(bs)-n-n1)/com.Num32RawSize {
		err = mus.ErrTooSmallByteSlice
		return
	}

	var embeddings []float32
	embeddings, n1, err = embeddingsMUS.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	if len(embeddings) > 0 {
		row.Embeddings = embeddings
	}
	return
}

func (indexRowMUS) Size(row core.IndexRow) int {
	return ord.String.Size(row.ChatID) +
		ord.String.Size(row.Text) +
		embeddingsMUS.Size(row.Embeddings)
}

func (indexRowMUS) Skip(bs []byte) (n int, err error) {
	var n1 int
	if n, err = ord.String.Skip(bs); err != nil {
		return
	}
	n1, err = ord.String.Skip(bs[n:])
	n += n1
	if err != nil {
		return
	}
	n1, err = embeddingsMUS.Skip(bs[n:])
	n += n1
	return
}

type indexMetadataMUS struct{}

func (indexMetadataMUS) Marshal(meta IndexMetadata, bs []byte) (n int) {
	n = ord.String.Marshal(meta.Model, bs)
	n += varint.PositiveInt.Marshal(meta.Dimensions, bs[n:])
	n += raw.TimeUnixMicroUTC.Marshal(meta.UpdatedAt, bs[n:])
	return
}

func (indexMetadataMUS) Unmarshal(bs []byte) (meta IndexMetadata, n int, err error) {
	var n1 int
	meta.Model, n, err = ord.String.Unmarshal(bs)
	if err != nil {
		return
	}
	meta.Dimensions, n1, err = varint.PositiveInt.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	var updated time.Time
	updated, n1, err = raw.TimeUnixMicroUTC.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	meta.UpdatedAt = updated
	return
}

func (indexMetadataMUS) Size(meta IndexMetadata) int {
	return ord.String.Size(meta.Model) +
		varint.PositiveInt.Size(meta.Dimensions) +
		raw.TimeUnixMicroUTC.Size(meta.UpdatedAt)
}

func (indexMetadataMUS) Skip(bs []byte) (n int, err error) {
	var n1 int
	if n, err = ord.String.Skip(bs); err != nil {
		return
	}
	n1, err = varint.PositiveInt.Skip(bs[n:])
	n += n1
	if err != nil {
		return
	}
	n1, err = raw.TimeUnixMicroUTC.Skip(bs[n:])
	n += n1
	return
}
