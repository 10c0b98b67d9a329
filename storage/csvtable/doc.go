// Package csvtable reads and writes the index table in the chatindex.csv
// format: a header row naming chat_id, text and embeddings columns, with each
// embedding written as a bracketed, comma separated list of floats.
//
// Extra columns, such as a leading unnamed row index, are ignored on read.
package csvtable
