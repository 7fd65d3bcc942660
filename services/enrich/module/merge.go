// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package module

// SourceDoc pairs a source name with the fields it produced. The order
// of a []SourceDoc is the merge priority: earlier docs win on overlap,
// later docs fill gaps.
type SourceDoc struct {
	// Name identifies the contributing source.
	Name string

	// Fields is the mapping that source returned.
	Fields map[string]any
}

// MergeSources is the single shared merge-with-priority mechanism.
//
// Description:
//
//	First-non-nil-wins by priority order: for each key, the value from
//	the earliest doc that has a non-nil entry is kept. Which sources a
//	module merges, and in what order, is that module's business logic;
//	the mechanism is fixed here so no module grows its own ad hoc map
//	merging.
//
// Inputs:
//
//	docs - Docs in descending priority order.
//
// Outputs:
//
//	map[string]any - The merged mapping. Never nil.
func MergeSources(docs ...SourceDoc) map[string]any {
	merged := make(map[string]any)
	for _, doc := range docs {
		for k, v := range doc.Fields {
			if v == nil {
				continue
			}
			if existing, ok := merged[k]; ok && existing != nil {
				continue
			}
			merged[k] = v
		}
	}
	return merged
}
