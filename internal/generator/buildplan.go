package generator

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"windci/internal/core"
)

const defaultProjectKey = "WINDCI"

// BuildPlan generates a Bamboo YAML plan specification.
//
// Every main-phase action gets its own stage and job. Final-phase actions run
// as final tasks in stages marked final, which Bamboo executes whatever the
// outcome of earlier stages: a single final stage when they share an image,
// otherwise one per action.
type BuildPlan struct{}

func (BuildPlan) Target() core.Target { return core.TargetBamboo }

type planJob struct {
	name       string
	key        string
	image      core.Image
	tasks      []*yaml.Node
	finalTasks []*yaml.Node
}

type planStage struct {
	name  string
	final bool
	job   *planJob
}

func (BuildPlan) Generate(def *core.PipelineDefinition) string {
	def = withCIVariables(core.TargetBamboo, def)
	phases := core.PartitionActions(def)
	projectKey, planKey := PlanKeys(def.Metadata)

	var stages []planStage
	for _, a := range phases.Main {
		stages = append(stages, planStage{
			name: a.Name,
			job:  &planJob{image: a.Image, tasks: []*yaml.Node{scriptTask(a)}},
		})
	}

	if len(phases.Final) > 0 {
		if sharedImage(phases.Final) {
			job := &planJob{image: phases.Final[0].Image}
			for _, a := range phases.Final {
				job.finalTasks = append(job.finalTasks, scriptTask(a))
			}
			stages = append(stages, planStage{name: "Final", final: true, job: job})
		} else {
			for _, a := range phases.Final {
				stages = append(stages, planStage{
					name:  a.Name,
					final: true,
					job:   &planJob{image: a.Image, finalTasks: []*yaml.Node{scriptTask(a)}},
				})
			}
		}
	}

	if len(def.Repositories) > 0 {
		checkout := checkoutTasks(def.Repositories)
		if len(stages) == 0 {
			stages = append(stages, planStage{
				name: "Checkout",
				job:  &planJob{image: def.Metadata.Docker},
			})
		}
		stages[0].job.tasks = append(checkout, stages[0].job.tasks...)
	}
	nameStages(stages)

	plan := mapping(
		"project-key", str(projectKey),
		"key", str(planKey),
		"name", str(def.Metadata.Name),
	)
	if def.Metadata.Description != "" {
		plan.Content = append(plan.Content, str("description"), str(def.Metadata.Description))
	}

	root := mapping(
		"version", integer(2),
		"plan", plan,
		"variables", mapping("lifecycle_stage", str(DefaultLifecycle)),
	)
	if len(def.Repositories) > 0 {
		repos := sequence()
		for _, r := range def.Repositories {
			repo := mapping("type", str("git"), "url", str(r.URL), "branch", str(r.Branch))
			if def.Metadata.GitCredentials != "" {
				repo.Content = append(repo.Content, str("shared-credentials"), str(def.Metadata.GitCredentials))
			}
			repos.Content = append(repos.Content, mapping(r.Name, repo))
		}
		appendPair(root, "repositories", repos)
	}

	stageSeq := sequence()
	for _, s := range stages {
		stageSeq.Content = append(stageSeq.Content, mapping(s.name, mapping(
			"manual", boolean(false),
			"final", boolean(s.final),
			"jobs", sequence(str(s.job.name)),
		)))
	}
	appendPair(root, "stages", stageSeq)

	for _, s := range stages {
		appendPair(root, s.job.name, jobNode(s.job))
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{root}}); err != nil {
		// only reachable with a malformed node tree
		panic(fmt.Sprintf("encode build plan: %v", err))
	}
	enc.Close()
	return "---\n" + buf.String()
}

// PlanKeys derives the Bamboo project and plan keys from metadata.
// An id of the form "project-plan" supplies both; otherwise the project is WINDCI.
func PlanKeys(md core.Metadata) (project, plan string) {
	source := md.ID
	if source == "" {
		source = md.Name
	}
	project = defaultProjectKey
	if before, after, ok := strings.Cut(source, "-"); ok && md.ID != "" && before != "" && after != "" {
		project = bambooKey(before, "P")
		source = after
	}
	return project, bambooKey(source, "P")
}

// nameStages makes stage names and job keys unique and names each job after its stage.
func nameStages(stages []planStage) {
	names := make([]string, len(stages))
	for i, s := range stages {
		names[i] = s.name
	}
	names = uniqueStageNames(names)
	usedKeys := map[string]bool{}
	for i := range stages {
		name := names[i]

		base := bambooKey(name, "J")
		key := base
		for n := 2; usedKeys[key]; n++ {
			key = fmt.Sprintf("%s%d", base, n)
		}
		usedKeys[key] = true

		stages[i].name = name
		stages[i].job.name = name + " job"
		stages[i].job.key = key
	}
}

func jobNode(j *planJob) *yaml.Node {
	n := mapping("key", str(j.key))
	if !j.image.IsZero() {
		docker := mapping("image", str(j.image.Ref()))
		if len(j.image.Volumes) > 0 {
			vols := mapping()
			for _, v := range j.image.Volumes {
				host, container, ok := strings.Cut(v, ":")
				if !ok {
					container = host
				}
				vols.Content = append(vols.Content, str(host), str(container))
			}
			docker.Content = append(docker.Content, str("volumes"), vols)
		}
		if len(j.image.RunArgs) > 0 {
			args := sequence()
			for _, a := range j.image.RunArgs {
				args.Content = append(args.Content, str(a))
			}
			docker.Content = append(docker.Content, str("docker-run-arguments"), args)
		}
		appendPair(n, "docker", docker)
	}
	appendPair(n, "tasks", sequence(j.tasks...))
	if len(j.finalTasks) > 0 {
		appendPair(n, "final-tasks", sequence(j.finalTasks...))
	}
	return n
}

func checkoutTasks(repos []core.Repository) []*yaml.Node {
	tasks := make([]*yaml.Node, 0, len(repos))
	for _, r := range repos {
		tasks = append(tasks, mapping("checkout", mapping(
			"repository", str(r.Name),
			"path", str(r.Path),
			"force-clean-build", boolean(true),
			"description", str("Checkout "+r.Name),
		)))
	}
	return tasks
}

func scriptTask(a core.Action) *yaml.Node {
	body := scriptBody(a)
	task := mapping(
		"interpreter", str("SHELL"),
		"scripts", sequence(str(body)),
		"description", str(singleLine(a.Name)),
	)
	if t, ok := a.Kind.(core.Template); ok {
		task.HeadComment = "uses " + singleLine(t.Use)
	}
	var env [][2]string
	for _, v := range a.Environment {
		env = append(env, [2]string{v.Name, v.Value})
	}
	for _, v := range a.EffectiveParameters() {
		env = append(env, [2]string{v.Name, v.Value})
	}
	if len(env) > 0 {
		appendPair(task, "environment", str(bambooEnv(env)))
	}
	if a.Workdir != "" {
		appendPair(task, "working-dir", str(a.Workdir))
	}
	if len(a.ExcludeDuring) > 0 {
		quoted := make([]string, len(a.ExcludeDuring))
		for i, l := range a.ExcludeDuring {
			quoted[i] = regexp.QuoteMeta(l)
		}
		pattern := fmt.Sprintf("^(?!(%s)$).*$", strings.Join(quoted, "|"))
		appendPair(task, "conditions", sequence(mapping("variable", mapping(
			"matches", mapping("lifecycle_stage", str(pattern)),
		))))
	}
	return mapping("script", task)
}

func sharedImage(actions []core.Action) bool {
	for _, a := range actions[1:] {
		if !a.Image.Equal(actions[0].Image) {
			return false
		}
	}
	return true
}

func mapping(kv ...any) *yaml.Node {
	n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for i := 0; i+1 < len(kv); i += 2 {
		appendPair(n, kv[i].(string), kv[i+1].(*yaml.Node))
	}
	return n
}

func appendPair(m *yaml.Node, key string, value *yaml.Node) {
	m.Content = append(m.Content, str(key), value)
}

func sequence(items ...*yaml.Node) *yaml.Node {
	return &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq", Content: items}
}

func str(s string) *yaml.Node {
	n := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
	if strings.Contains(s, "\n") {
		n.Style = yaml.LiteralStyle
	}
	return n
}

func integer(i int) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: fmt.Sprint(i)}
}

func boolean(b bool) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: fmt.Sprint(b)}
}
