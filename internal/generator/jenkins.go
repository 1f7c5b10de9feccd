package generator

import (
	"fmt"
	"strings"

	"windci/internal/core"
)

// Jenkins generates a declarative Jenkinsfile.
//
// When all actions share an image the pipeline runs on a single docker agent.
// Otherwise the pipeline runs on any agent and each stage with an image
// declares its own docker agent. Final-phase actions live in post { always }.
type Jenkins struct{}

func (Jenkins) Target() core.Target { return core.TargetJenkins }

func (Jenkins) Generate(def *core.PipelineDefinition) string {
	def = withCIVariables(core.TargetJenkins, def)
	phases := core.PartitionActions(def)
	shared, isShared := def.SharedImage()
	topImage := core.Image{}
	if isShared {
		topImage = shared
	}

	var w lineWriter
	w.line(0, "// windfile: %s", singleLine(def.Metadata.Name))
	w.line(0, "pipeline {")
	if topImage.IsZero() {
		w.line(2, "agent any")
	} else {
		w.line(2, "agent {")
		writeDockerAgent(&w, 4, topImage, false)
		w.line(2, "}")
	}
	w.line(2, "parameters {")
	w.line(4, "string(name: 'current_lifecycle', defaultValue: %s, description: 'The current stage')", groovyString(DefaultLifecycle))
	w.line(2, "}")
	if len(def.Environment) > 0 {
		w.line(2, "environment {")
		for _, v := range def.Environment {
			w.line(4, "%s = %s", v.Name, groovyString(v.Value))
		}
		w.line(2, "}")
	}

	var stageNames []string
	for _, r := range def.Repositories {
		stageNames = append(stageNames, "Clone "+r.Name)
	}
	for _, a := range phases.Main {
		stageNames = append(stageNames, a.Name)
	}
	stageNames = uniqueStageNames(stageNames)

	w.line(2, "stages {")
	for i, r := range def.Repositories {
		w.line(4, "stage(%s) {", groovyString(stageNames[i]))
		w.line(6, "steps {")
		w.line(8, "dir(%s) {", groovyString(r.Path))
		remote := "url: " + groovyString(r.URL)
		if def.Metadata.GitCredentials != "" {
			remote += ", credentialsId: " + groovyString(def.Metadata.GitCredentials)
		}
		w.line(10, "checkout([$class: 'GitSCM', branches: [[name: %s]], userRemoteConfigs: [[%s]]])", groovyString(r.Branch), remote)
		w.line(8, "}")
		w.line(6, "}")
		w.line(4, "}")
	}
	for i, a := range phases.Main {
		writeJenkinsStage(&w, stageNames[len(def.Repositories)+i], a, isShared)
	}
	if len(def.Repositories) == 0 && len(phases.Main) == 0 {
		// declarative pipelines need at least one stage
		w.line(4, "stage('Prepare') {")
		w.line(6, "steps {")
		w.line(8, "echo 'no main actions'")
		w.line(6, "}")
		w.line(4, "}")
	}
	w.line(2, "}")

	if len(phases.Final) > 0 {
		w.line(2, "post {")
		w.line(4, "always {")
		w.line(6, "script {")
		for _, a := range phases.Final {
			writeJenkinsFinal(&w, a, topImage)
		}
		w.line(6, "}")
		w.line(4, "}")
		w.line(2, "}")
	}
	w.line(0, "}")
	return w.String()
}

func writeDockerAgent(w *lineWriter, indent int, img core.Image, reuseNode bool) {
	w.line(indent, "docker {")
	w.line(indent+2, "image %s", groovyString(img.Ref()))
	if args := dockerArgs(img); args != "" {
		w.line(indent+2, "args %s", groovyString(args))
	}
	if reuseNode {
		w.line(indent+2, "reuseNode true")
	}
	w.line(indent, "}")
}

func dockerArgs(img core.Image) string {
	var args []string
	for _, v := range img.Volumes {
		args = append(args, "-v "+shellQuote(v))
	}
	for _, p := range img.RunArgs {
		args = append(args, shellQuote(p))
	}
	return strings.Join(args, " ")
}

func writeJenkinsStage(w *lineWriter, stage string, a core.Action, sharedAgent bool) {
	w.line(4, "stage(%s) {", groovyString(stage))
	if !sharedAgent && !a.Image.IsZero() {
		w.line(6, "agent {")
		writeDockerAgent(w, 8, a.Image, true)
		w.line(6, "}")
	}
	if len(a.ExcludeDuring) > 0 {
		w.line(6, "when {")
		w.line(8, "expression { return !(%s.contains(params.current_lifecycle)) }", groovyList(a.ExcludeDuring))
		w.line(6, "}")
	}
	if len(a.Environment) > 0 {
		w.line(6, "environment {")
		for _, v := range a.Environment {
			w.line(8, "%s = %s", v.Name, groovyString(v.Value))
		}
		w.line(6, "}")
	}
	w.line(6, "steps {")
	indent := 8
	if a.Workdir != "" {
		w.line(indent, "dir(%s) {", groovyString(a.Workdir))
		indent += 2
	}
	writeSh(w, indent, a)
	if a.Workdir != "" {
		w.line(8, "}")
	}
	w.line(6, "}")
	w.line(4, "}")
}

func writeJenkinsFinal(w *lineWriter, a core.Action, topImage core.Image) {
	w.line(8, "// final action %s", singleLine(a.Name))
	indent := 8
	var closers []int
	open := func(format string, args ...any) {
		w.line(indent, format+" {", args...)
		closers = append(closers, indent)
		indent += 2
	}

	if len(a.ExcludeDuring) > 0 {
		open("if (!(%s.contains(params.current_lifecycle)))", groovyList(a.ExcludeDuring))
	}
	if !a.Image.IsZero() && !a.Image.Equal(topImage) {
		open("docker.image(%s).inside(%s)", groovyString(a.Image.Ref()), groovyString(dockerArgs(a.Image)))
	}
	if len(a.Environment) > 0 {
		env := make([]string, 0, len(a.Environment))
		for _, v := range a.Environment {
			env = append(env, v.Name+"="+v.Value)
		}
		open("withEnv(%s)", groovyList(env))
	}
	if a.Workdir != "" {
		open("dir(%s)", groovyString(a.Workdir))
	}
	writeSh(w, indent, a)
	for i := len(closers) - 1; i >= 0; i-- {
		w.line(closers[i], "}")
	}
}

func writeSh(w *lineWriter, indent int, a core.Action) {
	if t, ok := a.Kind.(core.Template); ok {
		w.line(indent, "// uses %s", singleLine(t.Use))
	}
	var body []string
	for _, v := range a.EffectiveParameters() {
		body = append(body, v.Name+"="+shellQuote(v.Value))
	}
	body = append(body, lines(scriptBody(a))...)
	w.line(indent, "sh '''")
	for _, l := range body {
		w.raw(groovyScript(l))
	}
	w.line(indent, "'''")
}

func groovyList(items []string) string {
	quoted := make([]string, 0, len(items))
	for _, s := range items {
		quoted = append(quoted, groovyString(s))
	}
	return fmt.Sprintf("[%s]", strings.Join(quoted, ", "))
}
