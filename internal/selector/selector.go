// Package selector asks the operator which catalog candidate a photo shows.
package selector

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/lehigh-university-libraries/albumtracker/internal/errors"
	"github.com/lehigh-university-libraries/albumtracker/internal/models"
	"github.com/lehigh-university-libraries/albumtracker/internal/render"
)

// Prompter is a blocking text prompt. It is not safe for concurrent use.
type Prompter struct {
	in       *bufio.Reader
	out      io.Writer
	colorize bool
}

// New returns a Prompter reading answers from in and writing the candidate
// table to out.
func New(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{
		in:       bufio.NewReader(in),
		out:      out,
		colorize: render.ShouldColorize(out),
	}
}

// Choose shows candidates as a numbered table and reads one index. There is
// no default: even a single candidate must be picked explicitly.
func (p *Prompter) Choose(ctx context.Context, candidates []models.Candidate) (models.Selection, error) {
	if len(candidates) == 0 {
		return models.Selection{}, errors.WithHint(
			errors.Newk(errors.ErrEmptyCandidates, "catalog search returned no candidates"),
			"retake the photo or catalog this record by hand")
	}
	if err := ctx.Err(); err != nil {
		return models.Selection{}, err
	}

	fmt.Fprintln(p.out, Table(candidates, p.colorize))
	fmt.Fprintf(p.out, "Select a release [0-%d]: ", len(candidates)-1)

	line, err := p.in.ReadString('\n')
	if err != nil && (err != io.EOF || strings.TrimSpace(line) == "") {
		if err == io.EOF {
			return models.Selection{}, errors.Newk(errors.ErrInput, "no selection given (input closed)")
		}
		return models.Selection{}, errors.Wrapk(err, errors.ErrInput, "failed to read selection")
	}

	idx, err := ParseIndex(line, len(candidates))
	if err != nil {
		return models.Selection{}, err
	}
	return models.Selection{Index: idx, Candidate: candidates[idx]}, nil
}

// ParseIndex parses an operator answer as an index into n candidates
func ParseIndex(answer string, n int) (int, error) {
	s := strings.TrimSpace(answer)
	idx, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.Newkf(errors.ErrInput, "selection %q is not a number", s)
	}
	if idx < 0 || idx >= n {
		return 0, errors.Newkf(errors.ErrInput, "selection %d is out of range [0, %d)", idx, n)
	}
	return idx, nil
}

// Table renders candidates with their selection index
func Table(candidates []models.Candidate, colorize bool) string {
	rows := make([][]string, 0, len(candidates))
	for i, c := range candidates {
		rows = append(rows, []string{
			strconv.Itoa(i),
			c.Title,
			c.Country,
			c.Released,
			c.Format,
			strconv.FormatInt(c.ID, 10),
		})
	}
	return render.Table(
		[]string{"#", "Title", "Country", "Released", "Format", "Release ID"},
		rows,
		[]render.Alignment{render.AlignRight, render.AlignLeft, render.AlignLeft, render.AlignLeft, render.AlignLeft, render.AlignRight},
		colorize,
	)
}
