// Package preflight provides readiness checks for the local directories, the
// backend, and the files an operator is about to upload.
//
// These checks run in two contexts:
//   - The CLI "boletodesk doctor" command runs RunAll and renders each Result.
//   - The workflow calls CheckUploads before any multipart request so that a
//     missing, unreadable or malformed file never reaches the backend.
package preflight
