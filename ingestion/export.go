package ingestion

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/poiesic/gpthistory/core"
)

// DecodeExport decodes a conversations.json export: a JSON array of
// conversations, each with a mapping of node id to conversation record.
func DecodeExport(r io.Reader) ([]core.Conversation, error) {
	var convs []core.Conversation
	if err := json.NewDecoder(r).Decode(&convs); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidExport, err)
	}
	return convs, nil
}

// LoadExport reads and decodes the export file at path.
func LoadExport(path string) ([]core.Conversation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	convs, err := DecodeExport(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return convs, nil
}

// ChunksFromConversations extracts every text part of every conversation
// whose chat id is not in skip.
//
// Conversations keep their export order; nodes within a conversation are
// visited by message create_time, then node id. A chat id seen earlier in
// convs is not visited again. Blank parts are dropped.
func ChunksFromConversations(convs []core.Conversation, skip map[string]struct{}) []core.Chunk {
	seen := make(map[string]struct{}, len(convs))
	var chunks []core.Chunk

	for i := range convs {
		conv := &convs[i]
		chatID := conv.ChatID()
		if chatID == "" {
			continue
		}
		if _, done := skip[chatID]; done {
			continue
		}
		if _, dup := seen[chatID]; dup {
			continue
		}
		seen[chatID] = struct{}{}

		for _, key := range orderedNodeKeys(conv.Mapping) {
			for _, part := range ExtractTextParts(conv.Mapping[key]) {
				if strings.TrimSpace(part) == "" {
					continue
				}
				chunks = append(chunks, core.Chunk{ChatID: chatID, Text: part})
			}
		}
	}

	return chunks
}

func orderedNodeKeys(mapping map[string]core.ConversationRecord) []string {
	type node struct {
		key     string
		created float64
	}
	nodes := make([]node, 0, len(mapping))
	for key, record := range mapping {
		nodes = append(nodes, node{key: key, created: createTime(record)})
	}

	slices.SortFunc(nodes, func(a, b node) int {
		switch {
		case a.created < b.created:
			return -1
		case a.created > b.created:
			return 1
		default:
			return strings.Compare(a.key, b.key)
		}
	})

	keys := make([]string, len(nodes))
	for i, n := range nodes {
		keys[i] = n.key
	}
	return keys
}

func createTime(record core.ConversationRecord) float64 {
	message, ok := asObject(record["message"])
	if !ok {
		return 0
	}
	t, _ := message["create_time"].(float64)
	return t
}
