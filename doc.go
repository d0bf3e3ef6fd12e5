// Package engine is the root of the lattice OSINT entity-expansion engine.
//
// The engine grows a persistent entity graph from a single seed identifier
// (email, phone, domain, IP, name, username). Every discovered connection is
// classified as VERIFIED or UNVERIFIED evidence, and that classification
// drives investigation order: confirmed leads are exhausted before
// speculative ones, and speculative leads are promoted automatically once
// corroborating co-occurrence evidence appears.
//
// # Packages
//
// The engine is organized into focused packages:
//
//   - entity: graph data model (entities, source records, edges) and the
//     closed connection-reason taxonomy
//   - identity: deterministic content-addressed IDs
//   - normalize: field-to-scope mapping and value canonicalization
//   - classify: verification decision and reason detection
//   - graph: the graph repository (in-memory and Redis-backed stores)
//   - cascade: verification cascade checker
//   - provider: search provider adapters and etcd-based discovery
//   - policy: CEL-based dispatch scope filtering
//   - investigate: the priority-queue search controller
//   - config: investigation.yaml loading
//   - health: readiness checks for the store and registry backends
//
// The root package ties them together behind a single Engine facade.
//
// # Quick Start
//
//	eng, err := engine.New(nil, engine.WithProviders(myProvider))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Close()
//
//	id, err := eng.Investigate(ctx, investigate.Seed{Type: entity.TypeEmail, Value: "john@x.com"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	summary, err := eng.Wait(ctx, id)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("dispatches=%d upgrades=%d\n", summary.TotalDispatches, summary.Upgrades)
package engine
