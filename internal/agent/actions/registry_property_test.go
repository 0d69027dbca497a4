package actions

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"pgregory.net/rapid"

	errx "github.com/chative-core/agentbuilder/internal/core/error"
)

func TestPropertyRequiredParametersGateInvocation(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		r := NewRegistry()
		var calls atomic.Int32
		Register(r, "save_lead", newSaveLead(&calls))

		args := map[string]any{
			"name":  rapid.String().Draw(rt, "name"),
			"email": rapid.String().Draw(rt, "email"),
		}
		if _, err := r.Execute(context.Background(), "save_lead", args); err != nil {
			rt.Fatalf("exact required parameters failed: %v", err)
		}

		omit := rapid.SampledFrom([]string{"name", "email"}).Draw(rt, "omit")
		delete(args, omit)
		_, err := r.Execute(context.Background(), "save_lead", args)
		if !errors.Is(err, errx.ErrActionValidation) {
			rt.Fatalf("omitting %q: expected validation error, got %v", omit, err)
		}
		if calls.Load() != 1 {
			rt.Fatalf("handler invoked %d times, want 1", calls.Load())
		}
	})
}
