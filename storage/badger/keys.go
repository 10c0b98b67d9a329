package badger

import (
	"encoding/binary"

	"github.com/poiesic/gpthistory/core"
)

// Key prefixes for different data types
const (
	rowPrefix       = "idxrow:"
	chatIndexPrefix = "idxcid:"
	rowSeqKey       = "idxrowseq"
	metadataKey     = "idxmeta"
)

// makeRowKey generates a key for an index row by sequence number.
// Format: prefix:seq, big-endian so iteration follows insertion order.
func makeRowKey(seq uint64) []byte {
	buf := make([]byte, len(rowPrefix)+8)
	offset := copy(buf, rowPrefix)
	binary.BigEndian.PutUint64(buf[offset:], seq)
	return buf
}

// seqFromRowKey extracts the sequence number from a row key.
func seqFromRowKey(key []byte) uint64 {
	return binary.BigEndian.Uint64(key[len(rowPrefix):])
}

// makeChatIndexKey generates a composite key for the chat id index.
// Format: prefix:hash(chatID):seq
func makeChatIndexKey(chatID string, seq uint64) []byte {
	buf := make([]byte, len(chatIndexPrefix)+16)
	offset := copy(buf, chatIndexPrefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(core.IDFromContent(chatID)))
	offset += 8
	binary.BigEndian.PutUint64(buf[offset:], seq)
	return buf
}

// seqFromChatIndexKey extracts the row sequence number from a chat index key.
func seqFromChatIndexKey(key []byte) uint64 {
	return binary.BigEndian.Uint64(key[len(chatIndexPrefix)+8:])
}

// makePartialChatIndexKey generates a partial key for chat id lookups.
// Format: prefix:hash(chatID)
func makePartialChatIndexKey(chatID string) []byte {
	buf := make([]byte, len(chatIndexPrefix)+8)
	offset := copy(buf, chatIndexPrefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(core.IDFromContent(chatID)))
	return buf
}
