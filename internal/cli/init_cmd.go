package cli

import (
	"fmt"

	"github.com/NikitaCOEUR/pylambda/internal/project"
)

// InitParams contains parameters for the init command
type InitParams struct {
	Globals
	FunctionName string
	Description  string
	Runtime      string
	Minimal      bool
}

// Init writes the project template into the project directory
func Init(params InitParams) error {
	log := params.logger()
	created, err := project.Init(params.dir(), project.Options{
		FunctionName: params.FunctionName,
		Description:  params.Description,
		Runtime:      params.Runtime,
		Minimal:      params.Minimal,
	}, log, params.output())
	if err != nil {
		return err
	}

	if len(created) == 0 {
		fmt.Fprintln(params.output(), "Project already initialized, nothing to do")
		return nil
	}
	fmt.Fprintf(params.output(), "\nEdit %s, then run: pylambda deploy\n", params.configPath())
	return nil
}
