/*
Copyright 2025 The Kubernetes Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package broker

import "strconv"

// Outcome is the final state of a submitted request. It is a low-cardinality value suitable as a metrics label;
// the accompanying error carries the caller-facing message.
type Outcome int

const (
	// OutcomePending means the request has not reached a final state yet.
	OutcomePending Outcome = iota

	// OutcomeResolved means a worker posted a well-formed response.
	OutcomeResolved

	// OutcomeMalformed means a worker posted a response that could not be used. The error is one of
	// ErrNullResponse, ErrInvalidResponse or ErrNullObject.
	OutcomeMalformed

	// OutcomeTimedOut means the deadline elapsed first. The error is ErrRequestTimeout.
	OutcomeTimedOut

	// OutcomeCanceled means the caller's context ended first. The error is ErrRequestCanceled.
	OutcomeCanceled

	// OutcomeRejectedQueueFull means the request never entered the queue. The error is ErrQueueFull.
	OutcomeRejectedQueueFull

	// OutcomeRejectedDuplicate means the request id was already pending. The error wraps ErrDuplicateRequestID.
	OutcomeRejectedDuplicate
)

// String returns a human-readable string representation of the Outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomePending:
		return "Pending"
	case OutcomeResolved:
		return "Resolved"
	case OutcomeMalformed:
		return "Malformed"
	case OutcomeTimedOut:
		return "TimedOut"
	case OutcomeCanceled:
		return "Canceled"
	case OutcomeRejectedQueueFull:
		return "RejectedQueueFull"
	case OutcomeRejectedDuplicate:
		return "RejectedDuplicate"
	default:
		return "UnknownOutcome(" + strconv.Itoa(int(o)) + ")"
	}
}
