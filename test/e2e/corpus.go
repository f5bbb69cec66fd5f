// Package e2e provides end-to-end tests that ingest a generated documents
// directory and check retrieval against it.
package e2e

import (
	"fmt"
	"os"
	"path/filepath"
)

// Document is one file of the generated corpus.
type Document struct {
	// Name is the file name, which is also the source label after ingestion.
	Name string
	// Body is written to disk as is.
	Body string
	// Text is the parsed and normalized text the file yields as its only chunk.
	Text string
}

// Corpus is a documents directory worth of files.
type Corpus struct {
	Documents []Document
}

var topics = []struct {
	subject string
	detail  string
}{
	{"Calculus tutoring", "runs Monday through Thursday in room 204"},
	{"Physics help", "is offered by drop-in tutors every afternoon"},
	{"Chemistry review sessions", "meet before each midterm in the science hall"},
	{"Computer science office hours", "cover data structures and algorithms"},
	{"Statistics workshops", "teach regression with real datasets"},
	{"Biology study groups", "form at the start of every semester"},
	{"Engineering design lab", "lends 3D printers to enrolled students"},
	{"Linear algebra tutoring", "focuses on matrices and eigenvalues"},
	{"Organic chemistry help", "uses molecular model kits"},
	{"Mechanical engineering advising", "happens by appointment on Fridays"},
	{"Discrete math sessions", "practice proofs and counting problems"},
	{"Astronomy night", "opens the rooftop telescope once a month"},
}

// BuildCorpus returns one markdown and one text file per topic. Every file is
// short enough to become a single chunk, so Text is exactly what gets stored.
func BuildCorpus() *Corpus {
	c := &Corpus{}
	for i, t := range topics {
		sentence := fmt.Sprintf("%s %s.", t.subject, t.detail)
		c.Documents = append(c.Documents,
			Document{
				Name: fmt.Sprintf("topic-%02d.md", i),
				Body: fmt.Sprintf("# %s\n\n%s\n", t.subject, sentence),
				Text: fmt.Sprintf("%s %s", t.subject, sentence),
			},
			Document{
				Name: fmt.Sprintf("topic-%02d-notes.txt", i),
				Body: fmt.Sprintf("Notes: %s\n", sentence),
				Text: fmt.Sprintf("Notes: %s", sentence),
			},
		)
	}
	return c
}

// WriteTo writes every document into dir.
func (c *Corpus) WriteTo(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	for _, d := range c.Documents {
		if err := os.WriteFile(filepath.Join(dir, d.Name), []byte(d.Body), 0644); err != nil {
			return err
		}
	}
	return nil
}
