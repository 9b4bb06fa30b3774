// Package storage persists extraction output to the output directory, one
// file per document per format. Writes are atomic: content goes to a temp
// file in the target directory and is renamed into place, so readers never
// observe a partial file.
package storage
