// Package policy gates uploads on operator-defined admission rules before
// any archive bytes are inspected. Rules are rego; the default module
// accepts common package formats up to a size cap.
package policy

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/open-policy-agent/opa/rego"
	"go.uber.org/zap"
)

//go:embed upload.rego
var defaultModule string

// ErrDenied is wrapped around every policy rejection so callers can
// distinguish a denial from an evaluation failure.
var ErrDenied = errors.New("upload denied by policy")

// Upload is the admission input: what is known about an upload before its
// content is read.
type Upload struct {
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

type Engine struct {
	query rego.PreparedEvalQuery
	log   *zap.SugaredLogger
}

// NewEngine prepares the deny query once. An empty module selects the
// embedded default policy.
func NewEngine(ctx context.Context, module string) (*Engine, error) {
	if module == "" {
		module = defaultModule
	}
	zapLog, err := zap.NewDevelopment()
	if err != nil {
		return nil, err
	}
	query, err := rego.New(
		rego.Query("data.upload.deny"),
		rego.Module("upload.rego", module),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("preparing upload policy: %w", err)
	}
	return &Engine{query: query, log: zapLog.Sugar()}, nil
}

// Admit returns nil when no deny rule fires, and an ErrDenied-wrapped error
// carrying the first deny message otherwise.
func (e *Engine) Admit(ctx context.Context, up Upload) error {
	input := map[string]interface{}{
		"filename":  up.Filename,
		"size":      up.Size,
		"extension": strings.ToLower(filepath.Ext(up.Filename)),
	}
	rs, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		e.log.Warnw("policy evaluation failed", "error", err)
		return err
	}
	for _, result := range rs {
		for _, expr := range result.Expressions {
			denials, ok := expr.Value.([]interface{})
			if !ok {
				continue
			}
			for _, d := range denials {
				msg, _ := d.(string)
				e.log.Infow("upload denied", "filename", up.Filename, "reason", msg)
				return fmt.Errorf("%w: %s", ErrDenied, msg)
			}
		}
	}
	return nil
}
