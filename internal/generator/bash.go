package generator

import (
	"fmt"
	"strings"

	"windci/internal/core"
)

const (
	initialDirectoryVar = "WINDCI_INITIAL_DIRECTORY"
	sourcingArg         = "windci_sourcing"
	finalFunction       = "final_windci_post_action"
	containerWorkdir    = "/windci"
	containerScript     = "/windci-script.sh"
)

// Bash generates a self-contained shell script that runs the pipeline locally.
//
// Each action becomes a function. main clones the repositories and calls the
// main-phase functions in order, each in its own bash process or container.
// With set -e the first failing action ends main, and the EXIT trap runs the
// final-phase actions before exiting with the recorded status.
type Bash struct{}

func (Bash) Target() core.Target { return core.TargetBash }

func (Bash) Generate(def *core.PipelineDefinition) string {
	def = withCIVariables(core.TargetBash, def)
	phases := core.PartitionActions(def)
	names := make([]string, 0, len(def.Actions))
	for _, a := range def.Actions {
		names = append(names, a.Name)
	}
	fns := uniqueNames(names, func(n string) string { return "action_" + identifier(n) })

	var w lineWriter
	w.line(0, "#!/usr/bin/env bash")
	w.line(0, "set -e")
	w.line(0, "# windfile: %s", singleLine(def.Metadata.Name))
	w.line(0, `export %s="$(pwd)"`, initialDirectoryVar)
	for _, v := range def.Environment {
		w.line(0, "export %s=%s", v.Name, shellQuote(v.Value))
	}
	w.blank()

	for _, a := range def.Actions {
		if a.RunAlways {
			w.line(0, "# final action %s", singleLine(a.Name))
		} else {
			w.line(0, "# action %s", singleLine(a.Name))
		}
		writeBashFunction(&w, a, fns[a.Name])
		w.blank()
	}

	if len(phases.Final) > 0 {
		w.line(0, "%s () {", finalFunction)
		w.line(2, "_windci_status=$?")
		w.line(2, "set +e")
		w.line(2, "echo 'executing final actions'")
		w.line(2, `cd "${%s}"`, initialDirectoryVar)
		for _, a := range phases.Final {
			writeBashInvocation(&w, a, fns[a.Name])
			w.line(2, `cd "${%s}"`, initialDirectoryVar)
		}
		w.line(2, `exit "${_windci_status}"`)
		w.line(0, "}")
		w.blank()
	}

	w.line(0, "main () {")
	w.line(2, `_current_lifecycle="${1}"`)
	w.line(2, `if [[ "${_current_lifecycle}" == "%s" ]]; then`, sourcingArg)
	w.line(4, "# sourced for the action functions only")
	w.line(4, "return 0")
	w.line(2, "fi")
	w.line(2, `_script_name=$(realpath "${0}")`)
	if len(phases.Final) > 0 {
		w.line(2, "trap %s EXIT", finalFunction)
	}
	for _, r := range def.Repositories {
		w.line(2, "# repository %s", singleLine(r.Name))
		w.line(2, "git clone %s --branch %s %s", shellQuote(r.URL), shellQuote(r.Branch), shellQuote(r.Path))
	}
	for _, a := range phases.Main {
		w.line(2, "# action %s", singleLine(a.Name))
		writeBashInvocation(&w, a, fns[a.Name])
		w.line(2, `cd "${%s}"`, initialDirectoryVar)
	}
	w.line(0, "}")
	w.blank()
	w.line(0, `main "${@}"`)
	return w.String()
}

func writeBashFunction(w *lineWriter, a core.Action, fn string) {
	w.line(0, "%s () {", fn)
	w.line(2, `local _current_lifecycle="${1}"`)
	for _, l := range a.ExcludeDuring {
		w.line(2, `if [[ "${_current_lifecycle}" == %s ]]; then`, shellQuote(l))
		w.line(4, "echo %s", shellQuote(fmt.Sprintf("%s is excluded during %s", singleLine(a.Name), l)))
		w.line(4, "return 0")
		w.line(2, "fi")
	}
	w.line(2, "echo %s", shellQuote("executing "+singleLine(a.Name)))
	if t, ok := a.Kind.(core.Template); ok {
		w.line(2, "# uses %s", singleLine(t.Use))
	}
	for _, v := range a.Environment {
		w.line(2, "export %s=%s", v.Name, shellQuote(v.Value))
	}
	for _, v := range a.EffectiveParameters() {
		w.line(2, "%s=%s", v.Name, shellQuote(v.Value))
	}
	if a.Workdir != "" {
		w.line(2, "cd %s", shellQuote(a.Workdir))
	}
	// bodies are emitted verbatim so heredocs keep working
	for _, l := range lines(scriptBody(a)) {
		w.raw(l)
	}
	w.line(0, "}")
}

// writeBashInvocation runs fn in a fresh bash process, inside the action's
// container when it has one.
func writeBashInvocation(w *lineWriter, a core.Action, fn string) {
	call := shellQuote(fmt.Sprintf(`source "$0" %s && %s "$1"`, sourcingArg, fn))
	if a.Image.IsZero() {
		w.line(2, `bash -c %s "${_script_name}" "${_current_lifecycle}"`, call)
		return
	}
	args := []string{
		"docker run --rm",
		fmt.Sprintf(`-v "${%s}:%s"`, initialDirectoryVar, containerWorkdir),
		fmt.Sprintf(`-v "${_script_name}:%s:ro"`, containerScript),
		"-w " + containerWorkdir,
	}
	for _, v := range a.Image.Volumes {
		args = append(args, "-v "+shellQuote(v))
	}
	for _, p := range a.Image.RunArgs {
		args = append(args, shellQuote(p))
	}
	args = append(args, shellQuote(a.Image.Ref()))
	args = append(args, fmt.Sprintf(`bash -c %s %s "${_current_lifecycle}"`, call, containerScript))
	w.line(2, "%s", strings.Join(args, " \\\n    "))
}
