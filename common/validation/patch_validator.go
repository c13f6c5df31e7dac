package validation

import (
	"fmt"
	"strings"
)

// Paths a patch may touch. Results and identity fields live outside the
// graph document, so they are unreachable by construction.
var patchablePrefixes = []string{"/name", "/nodes", "/edges", "/handles"}

// Node types whose additions are capped per patch
var generativeTypes = map[string]bool{
	"image-gen": true,
	"llm":       true,
}

const maxGenerativePerPatch = 5

// PatchValidator validates JSON Patch operations before they touch a canvas
type PatchValidator struct{}

// NewPatchValidator creates a new patch validator
func NewPatchValidator() *PatchValidator {
	return &PatchValidator{}
}

// ValidateOperations validates all patch operations
func (v *PatchValidator) ValidateOperations(operations []map[string]interface{}) error {
	generativeCount := 0

	for i, op := range operations {
		if err := v.validateOperation(op, i); err != nil {
			return err
		}

		// Count generative nodes being added
		if op["op"] == "add" && strings.HasPrefix(op["path"].(string), "/nodes") {
			if value, ok := op["value"].(map[string]interface{}); ok {
				if nodeType, ok := value["type"].(string); ok && generativeTypes[nodeType] {
					generativeCount++
				}
			}
		}
	}

	if generativeCount > maxGenerativePerPatch {
		return fmt.Errorf("patch validation failed: cannot add more than %d generative nodes per patch (attempted: %d)", maxGenerativePerPatch, generativeCount)
	}

	return nil
}

// validateOperation validates a single operation
func (v *PatchValidator) validateOperation(op map[string]interface{}, index int) error {
	opType, ok := op["op"].(string)
	if !ok {
		return fmt.Errorf("operation %d: missing or invalid 'op' field", index)
	}

	path, ok := op["path"].(string)
	if !ok {
		return fmt.Errorf("operation %d: missing or invalid 'path' field", index)
	}

	if !v.pathAllowed(path) {
		return fmt.Errorf("operation %d: path %s is not patchable", index, path)
	}

	switch opType {
	case "add", "replace":
		if _, ok := op["value"]; !ok {
			return fmt.Errorf("operation %d: 'value' required for %s operation", index, opType)
		}

		// Special validation for node additions
		if path == "/nodes/-" {
			if err := v.validateNodeValue(op["value"], index); err != nil {
				return err
			}
		}

	case "remove":
		// Remove doesn't need value
		return nil

	default:
		return fmt.Errorf("operation %d: unsupported operation type: %s", index, opType)
	}

	return nil
}

func (v *PatchValidator) pathAllowed(path string) bool {
	for _, prefix := range patchablePrefixes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	return false
}

// validateNodeValue validates a node value in a patch
func (v *PatchValidator) validateNodeValue(value interface{}, opIndex int) error {
	nodeValue, ok := value.(map[string]interface{})
	if !ok {
		return fmt.Errorf("operation %d: node value must be an object, got %T", opIndex, value)
	}

	if _, ok := nodeValue["id"].(string); !ok {
		return fmt.Errorf("operation %d: node must have 'id' field (string)", opIndex)
	}

	if _, ok := nodeValue["type"].(string); !ok {
		return fmt.Errorf("operation %d: node must have 'type' field (string)", opIndex)
	}

	// Validate config if present
	if config, exists := nodeValue["config"]; exists {
		// Config MUST be an object, not array/string
		if _, ok := config.(map[string]interface{}); !ok {
			return fmt.Errorf("operation %d: node 'config' must be an object, got %T (hint: use {\"key\": \"value\"}, not [\"key\"])", opIndex, config)
		}
	}

	return nil
}
