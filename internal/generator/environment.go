package generator

import (
	"regexp"

	"windci/internal/core"
)

// ciVariables maps the target-independent CI variables a windfile may
// reference to the names each back end provides.
var ciVariables = map[core.Target]map[string]string{
	core.TargetBash: {
		"WORKDIR": initialDirectoryVar,
	},
	core.TargetBamboo: {
		"JOB_NAME":       "bamboo_planName",
		"JOB_ID":         "bamboo_buildNumber",
		"JOB_URI":        "bamboo_buildResultKey",
		"JOB_URL":        "bamboo_resultsUrl",
		"RUNNER_NAME":    "bamboo_agentId",
		"BRANCH_NAME":    "bamboo_planRepository_branchName",
		"REPOSITORY_URL": "bamboo_planRepository_repositoryUrl",
		"WORKDIR":        "bamboo_working_directory",
		"TMPDIR":         "bamboo_tmp_directory",
	},
	core.TargetJenkins: {
		"JOB_ID":         "BUILD_NUMBER",
		"JOB_URI":        "BUILD_TAG",
		"JOB_URL":        "BUILD_URL",
		"RUNNER_NAME":    "NODE_NAME",
		"REPOSITORY_URL": "GIT_URL",
		"WORKDIR":        "WORKSPACE",
		"TMPDIR":         "WORKSPACE_TMP",
	},
}

// CIVariable returns the name target uses for the CI variable name, or name
// itself when the target has no mapping.
func CIVariable(target core.Target, name string) string {
	if v, ok := ciVariables[target][name]; ok {
		return v
	}
	return name
}

var varRefRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// translateVariables rewrites $NAME and ${NAME} references to CI variables
// into target's names. Only references are rewritten, never bare words.
func translateVariables(target core.Target, s string) string {
	vars := ciVariables[target]
	if len(vars) == 0 {
		return s
	}
	return varRefRe.ReplaceAllStringFunc(s, func(ref string) string {
		m := varRefRe.FindStringSubmatch(ref)
		if m[1] != "" {
			if v, ok := vars[m[1]]; ok {
				return "${" + v + "}"
			}
			return ref
		}
		if v, ok := vars[m[2]]; ok {
			return "$" + v
		}
		return ref
	})
}

// withCIVariables returns a copy of def whose scripts, variable values,
// working directories and docker settings use target's CI variable names.
// Variable names themselves are left alone.
func withCIVariables(target core.Target, def *core.PipelineDefinition) *core.PipelineDefinition {
	if len(ciVariables[target]) == 0 {
		return def
	}
	tr := func(s string) string { return translateVariables(target, s) }

	out := def.Clone()
	out.Metadata.Docker = translateImage(out.Metadata.Docker, tr)
	out.Environment = translateVars(out.Environment, tr)
	for i := range out.Actions {
		a := &out.Actions[i]
		a.Image = translateImage(a.Image, tr)
		a.Environment = translateVars(a.Environment, tr)
		a.Parameters = translateVars(a.Parameters, tr)
		a.Workdir = tr(a.Workdir)
		switch k := a.Kind.(type) {
		case core.Script:
			a.Kind = core.Script{Body: tr(k.Body)}
		case core.Template:
			if k.Resolved != nil {
				r := *k.Resolved
				r.Body = tr(r.Body)
				r.Parameters = translateVars(r.Parameters, tr)
				k.Resolved = &r
			}
			a.Kind = k
		}
	}
	return out
}

func translateVars(vars core.Vars, tr func(string) string) core.Vars {
	if vars == nil {
		return nil
	}
	out := make(core.Vars, len(vars))
	for i, v := range vars {
		out[i] = core.Var{Name: v.Name, Value: tr(v.Value)}
	}
	return out
}

func translateImage(img core.Image, tr func(string) string) core.Image {
	img.Volumes = translateAll(img.Volumes, tr)
	img.RunArgs = translateAll(img.RunArgs, tr)
	return img
}

func translateAll(items []string, tr func(string) string) []string {
	if items == nil {
		return nil
	}
	out := make([]string, len(items))
	for i, s := range items {
		out[i] = tr(s)
	}
	return out
}
