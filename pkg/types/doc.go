/*
Package types defines the domain model shared by every mantle package.

The types mirror what the cluster services return, normalized across API
versions: groups and node states from the hardware state manager, boot
templates from the boot orchestration service, sessions, configurations and
components from the configuration framework, images from the image service,
and transitions and power status from the power control service.

CorrelationTuple is the one derived type. It joins an artifact id, a
configuration name and the targets that link them, and records which source
produced it so that callers can rank evidence.
*/
package types
