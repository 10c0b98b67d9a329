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


// Package storage defines where the chat index lives.
//
// An index is an append-only table of (chat id, text, embeddings) rows
// addressed by a monotonically increasing sequence number. Rows are loaded
// back in sequence order, which is the order they were indexed in, so the
// table a search ranks is the same table the ingestion run produced.
//
// IndexRepository is the single abstraction. The badger subpackage is the
// on-disk store used by the CLI and NewMemoryRepository is its in-memory
// twin for tests. The csvtable subpackage reads and writes the flat
// chatindex.csv layout for import and export; it is not a repository.
//
// Repositories are safe for concurrent use. Every method takes a
// context.Context and fails fast once it is cancelled or after Close.
//
//	repo, err := badger.Open(filepath.Join(home, ".gpthistory", "index"))
//	if err != nil {
//	    return err
//	}
//	defer repo.Close()
//
//	table, err := repo.LoadTable(ctx)
package storage
