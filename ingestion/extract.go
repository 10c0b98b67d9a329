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


package ingestion

import "github.com/poiesic/gpthistory/core"

const textContentType = "text"

// LookupTextParts returns the text parts of a conversation record.
//
// ok is false when the record has no message, no content, or content whose
// content_type is not "text"; parts is then empty. Parts are returned as
// stored, without joining, filtering or deduplication. Non-string parts
// are skipped.
func LookupTextParts(record core.ConversationRecord) (parts []string, ok bool) {
	parts = []string{}

	message, found := asObject(record["message"])
	if !found {
		return parts, false
	}
	content, found := asObject(message["content"])
	if !found {
		return parts, false
	}
	if contentType, _ := content["content_type"].(string); contentType != textContentType {
		return parts, false
	}

	switch raw := content["parts"].(type) {
	case []any:
		for _, p := range raw {
			if s, isString := p.(string); isString {
				parts = append(parts, s)
			}
		}
	case []string:
		parts = append(parts, raw...)
	}
	return parts, true
}

// ExtractTextParts returns the text parts of a conversation record, or an
// empty slice when the record carries no text content. Parts that are not
// strings (image or file references in multimodal messages) are left out;
// string parts come back unchanged and in order.
func ExtractTextParts(record core.ConversationRecord) []string {
	parts, _ := LookupTextParts(record)
	return parts
}

// asObject accepts both decoded JSON objects and hand-built records.
func asObject(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, len(m) > 0
	case core.ConversationRecord:
		return m, len(m) > 0
	default:
		return nil, false
	}
}
