package aggregates

// Contract states the policy an aggregate implementation promises to uphold.
// Implementations publish it so wiring audits can assert transaction and read
// discipline without inspecting code.
type Contract struct {
	Name             string
	WriteTxOwnership WriteTxOwnership
	ReadPolicy       ReadPolicy
	Notes            string
}

// Aggregate is implemented by every aggregate so its contract is reachable
// from wiring code.
type Aggregate interface {
	Contract() Contract
}

// WriteTxOwnership names who opens and commits the write transaction.
type WriteTxOwnership string

// WriteTxOwnedByAggregate means the aggregate method itself brackets the
// write in one transaction; callers never pass one in.
const WriteTxOwnedByAggregate WriteTxOwnership = "aggregate_owned"

// ReadPolicy bounds which reads an aggregate may perform.
type ReadPolicy string

const (
	// ReadPolicyInvariantScoped permits only the reads a write needs to
	// check its invariants.
	ReadPolicyInvariantScoped ReadPolicy = "invariant_scoped_reads"
	// ReadPolicyTableRepoQueries leaves listing and analytics queries to
	// the table repos.
	ReadPolicyTableRepoQueries ReadPolicy = "table_repo_queries"
)

func (c Contract) RequiresAggregateOwnedTx() bool {
	return c.WriteTxOwnership == WriteTxOwnedByAggregate
}
