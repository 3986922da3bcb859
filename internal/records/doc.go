// Package records defines the documents and operation payloads exchanged with
// the backend: collection documents, fiscal notes, processing results, email
// groups, and send records.
//
// The JSON tags follow the backend wire contract. Everything here is plain
// data plus small derived helpers; the backend owns every record and the
// console only holds cached copies that are replaced wholesale on each fetch.
package records
