package contentproto

import (
	"encoding/json"
	"fmt"

	"github.com/wI2L/jsondiff"
)

// Diff returns the operations that turn the before document into the after
// document. Both inputs must be valid JSON.
func Diff(before, after []byte) ([]Operation, error) {
	patch, err := jsondiff.CompareJSON(before, after)
	if err != nil {
		return nil, fmt.Errorf("failed to compare documents: %w", err)
	}

	ops := make([]Operation, 0, len(patch))
	for _, op := range patch {
		out := Operation{Op: op.Type, Path: op.Path, From: op.From}
		switch op.Type {
		case jsondiff.OperationAdd, jsondiff.OperationReplace, jsondiff.OperationTest:
			value, err := json.Marshal(op.Value)
			if err != nil {
				return nil, fmt.Errorf("failed to encode value at %s: %w", op.Path, err)
			}
			out.Value = value
		}
		ops = append(ops, out)
	}
	return ops, nil
}
