package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
)

// TextPrompt asks for a free-text or numeric answer.
type TextPrompt struct {
	Message   string
	Default   string
	Help      string
	Multiline bool
}

// ChoicePrompt asks for one or more entries from a fixed list. Selected holds
// the preselected indices; a single choice uses the first.
type ChoicePrompt struct {
	Message  string
	Options  []string
	Selected []int
	Help     string
	PageSize int
}

// PromptDriver is the terminal seen by the filler. Choices answer with
// indices into ChoicePrompt.Options, -1 when the answer is not listed.
type PromptDriver interface {
	Text(ctx context.Context, p TextPrompt) (string, error)
	Choose(ctx context.Context, p ChoicePrompt) (int, error)
	ChooseMany(ctx context.Context, p ChoicePrompt) ([]int, error)
	Info(ctx context.Context, msg string) error
}

type surveyDriver struct {
	out io.Writer
}

// NewSurveyDriver returns the interactive driver backed by survey. Info
// messages go to out, or stdout when out is nil.
func NewSurveyDriver(out io.Writer) PromptDriver {
	if out == nil {
		out = os.Stdout
	}
	return &surveyDriver{out: out}
}

func (d *surveyDriver) Text(ctx context.Context, p TextPrompt) (string, error) {
	var prompt survey.Prompt = &survey.Input{Message: p.Message, Help: p.Help, Default: p.Default}
	if p.Multiline {
		prompt = &survey.Multiline{Message: p.Message, Help: p.Help, Default: p.Default}
	}
	var answer string
	err := ask(ctx, prompt, &answer)
	return answer, err
}

func (d *surveyDriver) Choose(ctx context.Context, p ChoicePrompt) (int, error) {
	prompt := &survey.Select{Message: p.Message, Options: p.Options, Help: p.Help, PageSize: p.PageSize}
	if picked := labelsAt(p.Options, p.Selected); len(picked) > 0 {
		prompt.Default = picked[0]
	}
	var answer string
	if err := ask(ctx, prompt, &answer); err != nil {
		return -1, err
	}
	return positions(p.Options, []string{answer})[0], nil
}

func (d *surveyDriver) ChooseMany(ctx context.Context, p ChoicePrompt) ([]int, error) {
	prompt := &survey.MultiSelect{Message: p.Message, Options: p.Options, Help: p.Help, PageSize: p.PageSize}
	if picked := labelsAt(p.Options, p.Selected); len(picked) > 0 {
		prompt.Default = picked
	}
	var answers []string
	if err := ask(ctx, prompt, &answers); err != nil {
		return nil, err
	}
	return positions(p.Options, answers), nil
}

func (d *surveyDriver) Info(ctx context.Context, msg string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := fmt.Fprintln(d.out, msg)
	return err
}

// ask runs one survey prompt. Ctrl-C surfaces as ErrAborted so the filler
// cancels the session.
func ask(ctx context.Context, prompt survey.Prompt, answer any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := survey.AskOne(prompt, answer)
	if errors.Is(err, terminal.InterruptErr) {
		return ErrAborted
	}
	return err
}

func labelsAt(options []string, indices []int) []string {
	var out []string
	for _, idx := range indices {
		if idx >= 0 && idx < len(options) {
			out = append(out, options[idx])
		}
	}
	return out
}

// positions maps answered labels back to option indices, keeping the order
// of answers.
func positions(options, answers []string) []int {
	out := make([]int, 0, len(answers))
	for _, answer := range answers {
		idx := -1
		for i, option := range options {
			if option == answer {
				idx = i
				break
			}
		}
		out = append(out, idx)
	}
	return out
}
