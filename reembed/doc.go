// Package reembed recomputes the vector of every row in the index, for
// example after switching embedding models.
//
// Rows are read in pages, embedded through an embedding.Generator and
// written back in place; chat ids, texts and row order are never touched.
// A row whose batch fails keeps its previous vector instead of being
// overwritten with the zero-vector sentinel.
package reembed
