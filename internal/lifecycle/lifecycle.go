// Package lifecycle holds the ticket status transition policy. It is pure so
// the same table can be enforced server-side on every status update and
// consulted client-side for fast local denial. Transitions are monotonic
// along Open -> InProgress -> Resolved -> Closed, except that an operator may
// toggle Open and InProgress both ways. Resolved is reachable only by the
// requester, Closed only from Resolved by an operator, and Closed is terminal.
package lifecycle

import (
	"fmt"

	"github.com/spec-kit/ticket-chat/internal/domain"
)

// TransitionResult is the outcome of a transition request. Either Allowed is
// true and Next carries the new status, or Reason explains the denial in
// terms suitable for direct display.
type TransitionResult struct {
	Allowed bool
	Next    domain.TicketStatus
	Reason  string
}

func allowed(next domain.TicketStatus) TransitionResult {
	return TransitionResult{Allowed: true, Next: next}
}

func denied(reason string) TransitionResult {
	return TransitionResult{Reason: reason}
}

// Transition validates a status change for the given actor role. It touches
// no external state; callers persist the new status and broadcast the change
// themselves.
func Transition(current, requested domain.TicketStatus, actor domain.Role) TransitionResult {
	if current == requested {
		return denied(fmt.Sprintf("ticket is already %s", statusLabel(current)))
	}

	if current == domain.TicketStatusClosed {
		return denied("ticket is closed; closed tickets cannot change status")
	}

	if requested == domain.TicketStatusResolved {
		if actor != domain.RoleRequester {
			return denied("only the requester may resolve a ticket")
		}
		return allowed(domain.TicketStatusResolved)
	}

	if current == domain.TicketStatusResolved {
		if requested == domain.TicketStatusClosed && actor == domain.RoleOperator {
			return allowed(domain.TicketStatusClosed)
		}
		if actor == domain.RoleRequester {
			return denied("a resolved ticket must be closed; it cannot be re-opened")
		}
		return denied("a resolved ticket can only move to closed")
	}

	if requested == domain.TicketStatusClosed {
		return denied("a ticket must be resolved before it can be closed")
	}

	// Open <-> InProgress toggling is an operator action.
	if (current == domain.TicketStatusOpen && requested == domain.TicketStatusInProgress) ||
		(current == domain.TicketStatusInProgress && requested == domain.TicketStatusOpen) {
		if actor != domain.RoleOperator {
			return denied("only an operator may move a ticket between open and in progress")
		}
		return allowed(requested)
	}

	return denied(fmt.Sprintf("cannot move a ticket from %s to %s", statusLabel(current), statusLabel(requested)))
}

// ChatAllowed reports whether message sends are permitted for a ticket in the
// given status. Enforced at the delivery boundary so a closed ticket refuses
// sends even when the transition path was bypassed.
func ChatAllowed(status domain.TicketStatus) bool {
	return status != domain.TicketStatusClosed
}

func statusLabel(s domain.TicketStatus) string {
	switch s {
	case domain.TicketStatusOpen:
		return "open"
	case domain.TicketStatusInProgress:
		return "in progress"
	case domain.TicketStatusResolved:
		return "resolved"
	case domain.TicketStatusClosed:
		return "closed"
	default:
		return string(s)
	}
}
