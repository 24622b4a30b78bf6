package store

// opKind identifies a buffered batch operation.
type opKind int

const (
	opPut opKind = iota
	opRename
	opDelete
)

type batchOp struct {
	kind   opKind
	path   string
	to     string
	hash   Fingerprint
	result *AnalysisResult
}

// Batch buffers result-store mutations produced during a scan so they can be
// written in one transaction by CommitBatch. Operations are applied in the
// order they were added.
//
// Batch is not safe for concurrent use. Workers hand their results back to
// the scan coordinator, which is the only writer.
type Batch struct {
	ops []batchOp
}

func NewBatch() *Batch {
	return &Batch{}
}

// Put replaces everything stored for path with result.
func (b *Batch) Put(path string, hash Fingerprint, result *AnalysisResult) {
	b.ops = append(b.ops, batchOp{kind: opPut, path: path, hash: hash, result: result})
}

// Rename moves the stored result at from to to.
func (b *Batch) Rename(from, to string) {
	b.ops = append(b.ops, batchOp{kind: opRename, path: from, to: to})
}

// Delete drops the stored result for path.
func (b *Batch) Delete(path string) {
	b.ops = append(b.ops, batchOp{kind: opDelete, path: path})
}

// Len returns the number of buffered operations.
func (b *Batch) Len() int {
	return len(b.ops)
}
