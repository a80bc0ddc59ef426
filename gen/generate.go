package gen

import (
	"bytes"
	"context"
	"fmt"
	"go/format"
	"os"
	"text/template"

	"github.com/GabrielCarpr/mediator/cache"
	"github.com/GabrielCarpr/mediator/gen/templates"
	"github.com/GabrielCarpr/mediator/log"
)

var bindingsTemplate = template.Must(template.ParseFS(templates.Templates, "bindings.go.tmpl"))

// Run is the outcome of one generation
type Run struct {
	Report
	Path string
	// Written is false when the output was unchanged, or dropped after an error
	Written bool
}

// Render writes the binding table of a report as formatted Go source
func Render(r Report, module string) ([]byte, error) {
	buf := &bytes.Buffer{}
	err := bindingsTemplate.Execute(buf, struct {
		Report
		Module string
	}{r, module})
	if err != nil {
		return nil, err
	}
	out, err := format.Source(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("formatting generated bindings: %w", err)
	}
	return out, nil
}

// Generate scans the handler package of c and writes its binding table. A scan with
// errors writes nothing. Output whose hash memo already holds is not rewritten, unless
// the file is missing. memo may be nil.
func Generate(c Config, memo *cache.Memo) (Run, error) {
	c = c.withDefaults()
	ctx := log.WithID(context.Background())
	run := Run{Path: c.OutputPath()}

	rep, err := Scan(c)
	if err != nil {
		return run, err
	}
	run.Report = rep
	for _, d := range rep.Diagnostics {
		f := log.F{"pos": d.Pos.String()}
		if d.Severity == Error {
			log.Warn(ctx, d.Message, f)
		} else {
			log.Debug(ctx, d.Message, f)
		}
	}
	if rep.Failed() {
		log.Warn(ctx, "Generation dropped", log.F{"output": run.Path, "diagnostics": len(rep.Diagnostics)})
		return run, nil
	}

	content, err := Render(rep, c.Module)
	if err != nil {
		return run, err
	}
	if memo != nil && memo.Unchanged(c.memoName(), content) {
		if _, err := os.Stat(run.Path); err == nil {
			log.Debug(ctx, "Bindings unchanged", log.F{"output": run.Path})
			return run, nil
		}
	}

	if err := os.WriteFile(run.Path, content, 0o644); err != nil {
		return run, err
	}
	run.Written = true
	log.Info(ctx, "Bindings written", log.F{"output": run.Path, "bindings": len(rep.Bindings)})
	if memo != nil {
		return run, memo.Store(c.memoName(), content)
	}
	return run, nil
}
