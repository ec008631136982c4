// Package governanceengine implements the co-ownership governance engine
// inside the vehicle-governance context.
//
// The module owns proposal lifecycle orchestration (create/vote/cancel),
// quorum-weighted finalization with exactly-once effect application against
// the ownership table and shared maintenance fund, and the append-only
// governance history. Business rules live in application/domain layers;
// infrastructure concerns stay behind ports and adapters.
package governanceengine
