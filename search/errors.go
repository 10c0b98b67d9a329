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


package search

import "errors"

var (
	// ErrEmbedderRequired is returned when no query embedder is provided.
	ErrEmbedderRequired = errors.New("query embedder required")

	// ErrRepositoryRequired is returned when an index repository is not provided.
	ErrRepositoryRequired = errors.New("index repository required")

	// ErrInvalidThreshold is returned for a NaN or infinite score threshold.
	ErrInvalidThreshold = errors.New("invalid score threshold")

	// ErrShapeMismatch is returned when a stored vector does not have the
	// query vector's length.
	ErrShapeMismatch = errors.New("embedding shape mismatch")

	// ErrRankingPanic wraps a panic recovered while ranking.
	ErrRankingPanic = errors.New("panic while ranking")
)
