// Package tasks runs fire-and-forget work on a bounded worker pool tied to an
// owner's lifetime.
//
// Submit never blocks the caller. Failures are not returned to the submitter;
// they are logged and delivered on the Failures channel so a supervisor can
// decide what to do. Close cancels the scope: queued tasks are reported as
// cancelled without running and running tasks see a cancelled context.
package tasks
