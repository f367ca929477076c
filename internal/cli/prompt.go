package cli

import (
	"errors"
	"fmt"
	"os"

	"simplic/internal/project"

	"github.com/AlecAivazis/survey/v2"
	"golang.org/x/term"
)

// errNotInteractive is returned when a prompt is needed but stdin is not a
// terminal.
var errNotInteractive = errors.New("input required but stdin is not a terminal")

var interactive = func() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// promptProjectName asks for the name of a new project.
func promptProjectName() (string, error) {
	if !interactive() {
		return "", fmt.Errorf("project name: %w", errNotInteractive)
	}
	var name string
	prompt := &survey.Input{
		Message: "Project name",
		Help:    "A folder with this name is created under the projects root",
	}
	if err := survey.AskOne(prompt, &name, survey.WithValidator(survey.Required)); err != nil {
		return "", err
	}
	return name, nil
}

// promptProjectType asks for a project type, defaulting to PyToExe.
func promptProjectType() (project.Type, error) {
	if !interactive() {
		return "", fmt.Errorf("project type: %w", errNotInteractive)
	}

	options := make([]string, len(project.Types))
	for i, t := range project.Types {
		options[i] = t.Describe()
	}

	var idx int
	prompt := &survey.Select{
		Message: "Project type",
		Options: options,
		Default: options[0],
	}
	if err := survey.AskOne(prompt, &idx); err != nil {
		return "", err
	}
	return project.Types[idx], nil
}

// confirm asks a yes/no question, defaulting to no.
func confirm(message string) (bool, error) {
	if !interactive() {
		return false, fmt.Errorf("confirmation: %w", errNotInteractive)
	}
	var ok bool
	if err := survey.AskOne(&survey.Confirm{Message: message, Default: false}, &ok); err != nil {
		return false, err
	}
	return ok, nil
}
