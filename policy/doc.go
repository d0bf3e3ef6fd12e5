// Package policy gates dispatches with operator-supplied CEL expressions.
//
// An investigation config may carry a dispatch policy such as
//
//	type != "password" && depth < 3
//
// evaluated against the candidate dispatch before any provider is called.
// Expressions compile once at configuration time, so a malformed policy
// fails the investigation up front instead of mid-run. An empty expression
// allows every dispatch.
package policy
