package pdftest

import (
	fitz "github.com/gen2brain/go-fitz"
)

// fitzOpener backs the probe with the same embedded MuPDF library the
// extraction chain uses, so the verdict matches what extraction will see.
type fitzOpener struct{}

func (fitzOpener) Open(path string) (Doc, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, err
	}
	return fitzDoc{doc}, nil
}

func init() {
	setDefaultOpener(fitzOpener{})
}

type fitzDoc struct{ *fitz.Document }

func (d fitzDoc) Page(i int) (Page, error) {
	text, err := d.Document.Text(i)
	if err != nil {
		return nil, err
	}
	return fitzPage{text: text}, nil
}

type fitzPage struct {
	text string
}

func (p fitzPage) Text() (string, error) { return p.text, nil }
func (p fitzPage) Close()                {}
