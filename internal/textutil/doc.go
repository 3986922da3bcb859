// Package textutil provides the text normalization shared by reconciliation,
// rendering, and local file naming.
//
// The primary use cases are:
//   - Normalizing party names (uppercase, trimmed) and splitting them into
//     comparison tokens
//   - Reducing tax ids to digits and invoice numbers to their significant digits
//   - Formatting amounts as Brazilian currency for display
//   - Sanitizing filenames for preview downloads
package textutil
