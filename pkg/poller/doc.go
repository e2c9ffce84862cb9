/*
Package poller waits for server-side state to reach a goal.

Wait is the generic loop: fetch, check, sleep the policy interval, give up
after the policy's attempts with an ExhaustedError carrying the last value.
Two shapes are built on it:

  - handle based: SubmitAndPollTransition submits once and follows the
    returned transition id until it completes
  - level triggered: PollUntilPowerState re-issues the desired state for every
    node still mismatched, then re-reads power status

Observers receive one Progress per attempt and a final one per outcome.
*/
package poller
