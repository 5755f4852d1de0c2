// Package workflow is the per-event routing state machine.
//
// fsm.go declares the states, the transition table and the pure Next
// function:
//
//	Start → Evaluated → NoIssue | Ignore | Pending → End
//	                  → Escalated → FeedbackGenerated → Notified → End
//
// router.go attaches side effects to states: non-escalated terminal states
// set the NotApplicable feedback sentinel, FeedbackGenerated calls the
// narrative generator and Notified hands a composed chef email to a
// notify.Sender. Failures are recorded on the event, never on its Status.
package workflow
