package codescan

import "github.com/jward/codescan/internal/store"

// Public type aliases for internal store types used in the Engine and
// QueryBuilder API. These are Go type aliases (=), identical to the internal
// types at compile time.

type AnalysisResult = store.AnalysisResult
type RouteBinding = store.RouteBinding
type Classes = store.Classes
type Fingerprint = store.Fingerprint
type FileRecord = store.FileRecord
type File = store.File
type RouteRow = store.RouteRow
type SymbolRow = store.SymbolRow

// DefaultRoutePath is recorded for routes whose path is not a literal string.
const DefaultRoutePath = store.DefaultRoutePath
