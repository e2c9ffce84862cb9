/*
Package log provides structured logging for mantle using zerolog.

Logs go to stderr so that command output on stdout stays machine readable.
Init selects the level and switches between console and JSON output; the
With* helpers return child loggers carrying one context field:

	logger := log.WithTransitionID(id)
	logger.Info().Int("nodes", len(nodes)).Msg("Transition submitted")

Field names in use are component, operation, transition_id, session and group.
*/
package log
