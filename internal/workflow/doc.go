// Package workflow drives one operation through configure, upload, process
// and result.
//
// A Workflow owns the client-side state of a single session: the operation
// id and label, uploaded documents and notes, the latest processing result,
// the email-grouping preview and the send records. Every mutation is one
// backend call; state is committed only after the call succeeds, so a failure
// leaves the last known good state in place. The mutex guards state reads and
// writes and is never held across a backend call.
//
// How far the operator may navigate is computed from three facts (operation
// exists, documents exist, a result exists) by the stage package; the
// workflow never stores it. After a processing run the grouping preview is
// fetched in the background; Settle waits for it. Finalize, Cancel and Delete
// are terminal: once one succeeds, further mutations return
// services.ErrTerminated, except that a finalized operation can still send
// and reconcile its send records.
package workflow
