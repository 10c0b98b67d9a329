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


package core

import "fmt"

// ValidateIndexRow validates an IndexRow according to domain rules.
//
// Validation rules:
//   - ChatID must not be empty
//   - Embeddings must have exactly dim components
//
// NOT validated:
//   - Text (exports contain empty parts and they are indexed as-is)
//   - Embeddings contents (the zero vector is a valid sentinel)
func ValidateIndexRow(row *IndexRow, dim int) error {
	if row == nil {
		return fmt.Errorf("%w: row is nil", ErrInvalidIndexRow)
	}

	if row.ChatID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidIndexRow, ErrEmptyChatID)
	}

	if err := ValidateDimensions(row.Embeddings, dim); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidIndexRow, err)
	}

	return nil
}

// ValidateDimensions checks that v has exactly dim components.
func ValidateDimensions(v Vector, dim int) error {
	if len(v) != dim {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(v), dim)
	}
	return nil
}
