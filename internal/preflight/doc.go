// Package preflight provides readiness checks for the filesystem paths and
// external services courier depends on.
//
// These checks run in two contexts:
//   - The daemon runs RunAll before starting the worker pools and refuses to
//     start when a required check fails.
//   - The CLI "courier status" command renders the same results.
//
// Optional collaborators (gateway, LLM) are only checked when configured.
package preflight
