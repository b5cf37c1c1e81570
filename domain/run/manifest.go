package run

import (
	"kickchoice/domain/core"
	"kickchoice/internal/errors"
)

// Manifest records every input that determines a run's result, so a run
// can be replayed
type Manifest struct {
	ModelName         string    `json:"model_name"`
	ModelDefinition   []byte    `json:"model_definition,omitempty"`
	DataSource        string    `json:"data_source"`
	DataHash          core.Hash `json:"data_hash"`
	DrawMethod        string    `json:"draw_method"`
	Draws             int       `json:"draws"`
	Seed              uint64    `json:"seed"`
	MaxIterations     int       `json:"max_iterations"`
	GradientTolerance float64   `json:"gradient_tolerance"`
	CodeVersion       string    `json:"code_version"`
}

// Fingerprint hashes the manifest. The data source path and the worker
// count are not part of it.
func (m Manifest) Fingerprint() core.Hash {
	return core.ComputeRunFingerprint(m.ModelDefinition, m.DataHash, m.DrawMethod, m.Draws, m.Seed, map[string]interface{}{
		"max_iterations":     m.MaxIterations,
		"gradient_tolerance": m.GradientTolerance,
		"code_version":       m.CodeVersion,
	})
}

// Validate checks the manifest is complete
func (m Manifest) Validate() error {
	if m.ModelName == "" {
		return errors.ValidationError("run manifest: model_name cannot be empty")
	}
	if m.DataHash.IsEmpty() {
		return errors.ValidationError("run manifest: data_hash cannot be empty")
	}
	if m.Draws < 0 {
		return errors.ValidationError("run manifest: draws cannot be negative")
	}
	return nil
}
