// Package retrieval implements the document indexing and ranking service used
// by the rag.index and rag.query tools.
//
// Documents are split into paragraph-aligned chunks and ranked with Okapi
// BM25. Posting lists and collection membership are roaring bitmaps, so a
// query only scores chunks that share at least one term with it and belong
// to one of the requested collections.
package retrieval
