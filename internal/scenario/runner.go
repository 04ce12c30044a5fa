package scenario

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/testguard/internal/model"
	"github.com/ppiankov/testguard/internal/policy"
)

// Run evaluates all cases in a scenario against reg. Cases are
// independent and nothing is audited. Relative filesystem targets resolve
// against the registry base dir.
func Run(s *Scenario, reg *policy.Registry) *RunResult {
	result := &RunResult{
		Name:  s.Name,
		Total: len(s.Cases),
	}

	for i, c := range s.Cases {
		cr := CaseResult{
			Index:        i + 1,
			Category:     c.Op.Category,
			Target:       c.Op.Target,
			Expected:     strings.ToLower(c.Expect),
			ExpectedRule: c.Rule,
		}

		cat, ok := model.ParseCategory(c.Op.Category)
		if !ok {
			cat = model.Category(c.Op.Category)
		}
		target := c.Op.Target
		if cat == model.FilesystemWrite && target != "" && !filepath.IsAbs(target) {
			target = filepath.Join(reg.BaseDir(), target)
		}

		v := reg.Evaluate(model.Operation{Category: cat, Target: target})
		cr.Actual = string(v.Decision)
		cr.ActualRule = v.RuleID
		cr.Reason = v.Reason

		if cr.Actual == cr.Expected && (c.Rule == "" || c.Rule == v.RuleID) {
			cr.Passed = true
			result.Passed++
		} else {
			result.Failed++
		}

		result.Cases = append(result.Cases, cr)
	}

	return result
}

// Load parses a scenario YAML file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario %s: %w", path, err)
	}

	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	return &s, nil
}

// LoadAndRun loads a scenario YAML file and runs it against reg.
func LoadAndRun(path string, reg *policy.Registry) (*RunResult, error) {
	s, err := Load(path)
	if err != nil {
		return nil, err
	}
	result := Run(s, reg)
	result.File = path
	return result, nil
}
