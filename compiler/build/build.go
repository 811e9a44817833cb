package build

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"
)

type (
	// Builder assembles <out>.asm into <out>.o and links it into <out>.
	Builder struct {
		Assembler string
		Linker    string
		LinkFlags []string
	}

	ToolError struct {
		Tool   string
		Output []byte
		Err    error
	}
)

func New() *Builder {
	return &Builder{
		Assembler: "fasm",
		Linker:    "gcc",
		LinkFlags: []string{"-no-pie"},
	}
}

func (b *Builder) Build(ctx context.Context, out string) (err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "build", "out", out)
	defer tr.Finish("err", &err)

	err = b.run(ctx, b.Assembler, out+".asm")
	if err != nil {
		return errors.Wrap(err, "assemble")
	}

	args := append([]string{}, b.LinkFlags...)
	args = append(args, "-o", out, out+".o")

	err = b.run(ctx, b.Linker, args...)
	if err != nil {
		return errors.Wrap(err, "link")
	}

	return nil
}

func (b *Builder) run(ctx context.Context, tool string, args ...string) error {
	tr := tlog.SpanFromContext(ctx)

	var stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, tool, args...)
	cmd.Stderr = &stderr

	stdout, err := cmd.Output()

	tr.V("tool").Printw("tool finished", "tool", tool, "args", args, "stdout", stdout, "stderr", stderr.Bytes(), "err", err)

	if err != nil {
		return &ToolError{
			Tool:   tool,
			Output: stderr.Bytes(),
			Err:    err,
		}
	}

	return nil
}

func (e *ToolError) Error() string {
	if len(e.Output) == 0 {
		return fmt.Sprintf("%s: %v", e.Tool, e.Err)
	}

	return fmt.Sprintf("%s: %v: %s", e.Tool, e.Err, bytes.TrimSpace(e.Output))
}

func (e *ToolError) Unwrap() error { return e.Err }
