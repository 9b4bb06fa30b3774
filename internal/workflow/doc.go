// Package workflow wires the document pipeline together: it defines the
// per-document processing graph (extract, persist per format, create the
// review item) and runs a Manager that polls the inbox directory, launches
// one executor run per document, and releases expired review claims.
package workflow
