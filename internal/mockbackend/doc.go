// Package mockbackend is an in-memory implementation of the operations
// backend HTTP surface. It is used by the package tests and by the
// "mockbackend" command for local runs of the console.
//
// Document contents come from pluggable extractors. The default collection
// extractor counts PDF pages with pdfcpu and reads per-page fields from
// "% boleto:{json}" comment lines, the convention used by BuildPDF. The
// default fiscal extractor parses NFe XML (with or without the portal
// namespace) and the same comment convention for fiscal PDFs.
//
// Approval follows the five-layer rules: note present and valid, tax id,
// name (advisory only), exact amount, and at least one valid recipient. The
// server refuses out-of-order mutations with 409 Conflict.
package mockbackend
