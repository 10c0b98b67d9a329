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


// Package openai embeds text through an OpenAI-compatible embeddings
// endpoint using langchaingo.
//
// The host in ai.Config may point at api.openai.com or at a local server
// that speaks the same protocol. Requests larger than the endpoint accepts
// are split before sending; the caller still sees one vector per input.
package openai
