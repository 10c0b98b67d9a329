// Package ingestion turns a ChatGPT conversations export into index rows.
//
// ExtractTextParts pulls the text parts out of a single conversation node.
// The Pipeline type runs the full workflow:
//   - Decoding the export
//   - Skipping conversations already present in the index
//   - Extracting chunks from the remaining conversations
//   - Generating embeddings in batches
//   - Appending (chat id, text, embeddings) rows to the index
//
// Embedding failures never fail an indexing run; affected chunks are stored
// with zero vectors unless the pipeline is configured to drop them.
package ingestion
