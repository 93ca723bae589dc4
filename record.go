package vigia

// Record is one structured unit of extracted metadata: a flat mapping of
// field name to scalar/string value.
//
// IMMUTABILITY CONTRACT:
//   - Extractor: MUST NOT modify a Record after returning it from Extract
//   - Consumer: MUST NOT modify a Record (read-only access)
//   - Enforcement: documentation-based (runtime copies would add overhead
//     on the streaming thread)
//
// Ownership transfers from the Extractor to the handoff queue to the worker;
// after Consume returns the Record is not referenced again by the pipeline.
type Record map[string]any

// Clone returns a shallow copy. Use it when a Consumer needs to retain or
// annotate a Record beyond the Consume call.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Well-known Record fields populated by the built-in extractor. Custom
// extractors are free to use their own field names.
const (
	FieldSource    = "source"
	FieldPTS       = "pts_ns"
	FieldTimestamp = "timestamp"
	FieldBytes     = "bytes"
)
