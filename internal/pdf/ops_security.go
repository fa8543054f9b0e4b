package pdf

import (
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/local/blinkpdf/internal/tools"
)

func (e *Engine) protect(tool *tools.Tool, in Input, opts Options, workDir string) (Output, error) {
	password := opts.Get("password", "")
	if len(password) < 4 {
		return Output{}, fmt.Errorf("protect-pdf needs a password of at least 4 characters")
	}

	c := conf()
	c.UserPW = password
	c.OwnerPW = opts.Get("owner_password", password)

	outPath, out := e.result(tool, in, workDir, ".pdf")
	if err := api.EncryptFile(in.Path, outPath, c); err != nil {
		return Output{}, fmt.Errorf("protect: %w", err)
	}
	return out, nil
}

func (e *Engine) unlock(tool *tools.Tool, in Input, opts Options, workDir string) (Output, error) {
	password := opts.Get("password", "")
	if password == "" {
		return Output{}, fmt.Errorf("unlock-pdf needs the document password")
	}

	c := conf()
	c.UserPW = password
	c.OwnerPW = password

	outPath, out := e.result(tool, in, workDir, ".pdf")
	if err := api.DecryptFile(in.Path, outPath, c); err != nil {
		return Output{}, fmt.Errorf("unlock failed, check the password: %w", err)
	}
	return out, nil
}
