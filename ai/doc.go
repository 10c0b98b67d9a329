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


// Package ai describes the remote embedding service gpthistory talks to.
//
// Embedder turns one text or a batch of texts into vectors; AIProvider
// owns an Embedder together with whatever client state it needs and
// releases it on Close. The embedding package wraps an Embedder with
// batching, retries and zero-vector fallbacks, so implementations here stay
// thin and simply return errors.
//
// ai/openai talks to OpenAI-compatible /v1/embeddings endpoints. ai/mock
// returns deterministic vectors and records every call for tests; its
// constructors return concrete types so tests can swap in failing
// functions.
//
//	cfg := ai.NewConfig(ai.WithAPIKey(key), ai.WithDimensions(1536))
//	provider, err := openai.NewProvider(cfg)
//	if err != nil {
//	    return err
//	}
//	defer provider.Close()
package ai
