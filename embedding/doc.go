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


// Package embedding turns text chunks into embedding vectors through an
// ai.Embedder.
//
// Generation is fail-soft. A query that cannot be embedded yields the zero
// vector, and a batch whose service call fails yields one zero vector per
// chunk, so the output always lines up 1:1 with the input. Callers that need
// to tell a failed batch from a real vector use GenerateEmbeddingsReport.
//
//	gen, err := embedding.NewGenerator(provider.Embedder(), embedding.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	defer gen.Release()
//
//	vectors := gen.GenerateEmbeddings(ctx, texts)
package embedding
