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


// Package search ranks indexed chunks against a query.
//
// Ranking is an exact scan: the query is embedded once, every stored vector
// is scored by dot product, scores below the threshold are discarded and the
// survivors are returned highest first. Failures never escape the Ranker; a
// ranking that cannot be computed is logged and comes back empty.
//
// Searcher adds loading of the table from a storage.IndexRepository.
package search
