package enforce

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/ppiankov/testguard/internal/model"
)

// TestEveryGuardedCallIsAuditedOnce verifies the audit contract.
// Property: for any sequence of guarded checks, the session log holds one
// event per call, and each block event pairs with a returned violation
// carrying its sequence number.
func TestEveryGuardedCallIsAuditedOnce(t *testing.T) {
	reg, sandbox := testRegistry(t, true)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("one event per guarded call", prop.ForAll(
		func(picks []int, name string) bool {
			c := New(reg, WithLogger(slog.New(slog.DiscardHandler)))
			if err := c.Install(); err != nil {
				return false
			}
			defer c.Uninstall()
			g := c.Gateway()

			var violations []uint64
			for _, p := range picks {
				cat := model.GuardCategories[p%len(model.GuardCategories)]
				target := name
				if cat == model.FilesystemWrite {
					target = sandbox + "/" + name
				}
				err := g.Check(model.Operation{Category: cat, Surface: "check", Target: target})
				var v *Violation
				if errors.As(err, &v) {
					violations = append(violations, v.Seq)
				}
			}

			events := c.Log().Snapshot()
			if len(events) != len(picks) {
				return false
			}
			for _, seq := range violations {
				if seq == 0 || int(seq) > len(events) || events[seq-1].Decision != model.Block {
					return false
				}
			}
			return c.Log().Count(model.Block) == len(violations)
		},
		gen.SliceOf(gen.IntRange(0, 100)),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
