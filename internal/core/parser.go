package core

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"

	"windci/internal/apperror"
)

// SupportedAPI is the range of windfile api versions this engine understands.
const SupportedAPI = ">= 0.0.1, < 0.1.0"

var apiConstraint = mustConstraint(SupportedAPI)

func mustConstraint(s string) *semver.Constraints {
	c, err := semver.NewConstraint(s)
	if err != nil {
		panic(err)
	}
	return c
}

// CheckAPIVersion reports whether version is within SupportedAPI.
func CheckAPIVersion(version string) error {
	v, err := semver.NewVersion(strings.TrimSpace(version))
	if err != nil {
		return fmt.Errorf("invalid api version %q: %w", version, err)
	}
	if !apiConstraint.Check(v) {
		return fmt.Errorf("api version %s is not supported (want %s)", version, SupportedAPI)
	}
	return nil
}

// Normalize parses a windfile into a PipelineDefinition, applying defaults
// and rejecting documents that violate structural constraints.
func Normalize(text []byte) (*PipelineDefinition, error) {
	root, err := ParseDocument(text)
	if err != nil {
		return nil, err
	}
	if root.Kind != yaml.MappingNode {
		return nil, violation(root, "", "document root must be a mapping")
	}
	pairs, err := uniquePairs(root, "")
	if err != nil {
		return nil, err
	}
	top := make(map[string]*yaml.Node, len(pairs))
	for _, p := range pairs {
		top[p.Key.Value] = p.Value
	}

	def := &PipelineDefinition{}

	apiNode, ok := top["api"]
	if !ok || isNull(apiNode) {
		return nil, violation(root, "/api", "api is required")
	}
	def.API = strings.TrimSpace(apiNode.Value)
	if err := CheckAPIVersion(def.API); err != nil {
		pos := NodePos(apiNode)
		return nil, &apperror.Error{
			Kind:    apperror.UnsupportedVersion,
			Message: err.Error(),
			Markers: []apperror.Marker{apperror.ErrorAt(pos.Line, pos.Column, "/api", err.Error())},
		}
	}

	metaNode, ok := top["metadata"]
	if !ok || metaNode.Kind != yaml.MappingNode {
		return nil, violation(orNode(metaNode, root), "/metadata", "metadata must be a mapping")
	}
	if def.Metadata, err = parseMetadata(metaNode); err != nil {
		return nil, err
	}

	if n, ok := top["environment"]; ok {
		if def.Environment, err = parseVars(n, "/environment"); err != nil {
			return nil, err
		}
	}
	if n, ok := top["repositories"]; ok {
		if def.Repositories, err = parseRepositories(n); err != nil {
			return nil, err
		}
	}
	if n, ok := top["actions"]; ok {
		if def.Actions, err = parseActions(n, def.Metadata.Docker); err != nil {
			return nil, err
		}
	}
	if err := checkNeeds(def.Actions); err != nil {
		return nil, err
	}
	return def, nil
}

// LoadPipeline reads and normalizes a windfile from disk.
func LoadPipeline(path string) (*PipelineDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Normalize(data)
}

func parseMetadata(n *yaml.Node) (Metadata, error) {
	var md Metadata
	pairs, err := uniquePairs(n, "/metadata")
	if err != nil {
		return md, err
	}
	for _, p := range pairs {
		ptr := PointerChild("/metadata", p.Key.Value)
		switch p.Key.Value {
		case "name":
			md.Name, err = scalar(p.Value, ptr)
		case "id":
			md.ID, err = scalar(p.Value, ptr)
		case "description":
			md.Description, err = scalar(p.Value, ptr)
		case "gitCredentials":
			md.GitCredentials, err = scalar(p.Value, ptr)
		case "author":
			md.Author, err = parseAuthor(p.Value, ptr)
		case "docker":
			md.Docker, err = parseImage(p.Value, ptr)
		}
		if err != nil {
			return md, err
		}
	}
	if strings.TrimSpace(md.Name) == "" {
		return md, violation(n, "/metadata/name", "metadata.name is required")
	}
	return md, nil
}

func parseAuthor(n *yaml.Node, ptr string) (Author, error) {
	if n.Kind == yaml.ScalarNode {
		return Author{Name: n.Value}, nil
	}
	if n.Kind != yaml.MappingNode {
		return Author{}, violation(n, ptr, "author must be a string or a mapping")
	}
	var a Author
	if v := Lookup(n, "name"); v != nil {
		a.Name = v.Value
	}
	if v := Lookup(n, "email"); v != nil {
		a.Email = v.Value
	}
	return a, nil
}

func parseImage(n *yaml.Node, ptr string) (Image, error) {
	var img Image
	if n.Kind != yaml.MappingNode {
		return img, violation(n, ptr, "docker must be a mapping")
	}
	pairs, err := uniquePairs(n, ptr)
	if err != nil {
		return img, err
	}
	for _, p := range pairs {
		child := PointerChild(ptr, p.Key.Value)
		switch p.Key.Value {
		case "image":
			img.Name, err = scalar(p.Value, child)
		case "tag":
			img.Tag, err = scalar(p.Value, child)
		case "volumes":
			img.Volumes, err = stringList(p.Value, child)
		case "parameters":
			img.RunArgs, err = stringList(p.Value, child)
		}
		if err != nil {
			return img, err
		}
	}
	if img.Name == "" {
		return img, violation(n, PointerChild(ptr, "image"), "docker.image is required")
	}
	if name, tag := splitImage(img.Name); tag != "" {
		if img.Tag != "" && img.Tag != tag {
			return img, violation(n, PointerChild(ptr, "tag"), "tag %q conflicts with image reference %q", img.Tag, img.Name)
		}
		img.Name, img.Tag = name, tag
	}
	if img.Tag == "" {
		img.Tag = "latest"
	}
	return img, nil
}

func parseRepositories(n *yaml.Node) ([]Repository, error) {
	if isNull(n) {
		return nil, nil
	}
	if n.Kind != yaml.MappingNode {
		return nil, violation(n, "/repositories", "repositories must be a mapping")
	}
	pairs, err := uniquePairs(n, "/repositories")
	if err != nil {
		return nil, err
	}
	repos := make([]Repository, 0, len(pairs))
	for _, p := range pairs {
		ptr := PointerChild("/repositories", p.Key.Value)
		if p.Value.Kind != yaml.MappingNode {
			return nil, violation(p.Value, ptr, "repository %q must be a mapping", p.Key.Value)
		}
		repo := Repository{Name: p.Key.Value}
		if v := Lookup(p.Value, "url"); v != nil {
			repo.URL = v.Value
		}
		if v := Lookup(p.Value, "branch"); v != nil {
			repo.Branch = v.Value
		}
		if v := Lookup(p.Value, "path"); v != nil {
			repo.Path = v.Value
		}
		if repo.URL == "" {
			return nil, violation(p.Value, PointerChild(ptr, "url"), "repository %q has no url", repo.Name)
		}
		if repo.Branch == "" {
			repo.Branch = "main"
		}
		if repo.Path == "" {
			repo.Path = repo.Name
		}
		repos = append(repos, repo)
	}
	return repos, nil
}

// parseActions accepts the mapping form (name: {...}) and the list form ([{name: ..., ...}]).
func parseActions(n *yaml.Node, defaultImage Image) ([]Action, error) {
	if isNull(n) {
		return nil, nil
	}
	type entry struct {
		name    string
		nameKey *yaml.Node
		body    *yaml.Node
		ptr     string
	}
	var entries []entry
	switch n.Kind {
	case yaml.MappingNode:
		pairs, err := uniquePairs(n, "/actions")
		if err != nil {
			return nil, err
		}
		for _, p := range pairs {
			entries = append(entries, entry{p.Key.Value, p.Key, p.Value, PointerChild("/actions", p.Key.Value)})
		}
	case yaml.SequenceNode:
		for i, item := range n.Content {
			item = deref(item)
			ptr := fmt.Sprintf("/actions/%d", i)
			nameNode := Lookup(item, "name")
			if nameNode == nil || nameNode.Value == "" {
				return nil, violation(item, ptr+"/name", "action at index %d has no name", i)
			}
			entries = append(entries, entry{nameNode.Value, nameNode, item, ptr})
		}
	default:
		return nil, violation(n, "/actions", "actions must be a mapping or a list")
	}

	seen := make(map[string]*yaml.Node, len(entries))
	actions := make([]Action, 0, len(entries))
	for _, e := range entries {
		if prev, dup := seen[e.name]; dup {
			return nil, violation(e.nameKey, e.ptr, "duplicate action name %q (first declared at line %d)", e.name, prev.Line)
		}
		seen[e.name] = e.nameKey
		a, err := parseAction(e.name, e.body, e.ptr, defaultImage)
		if err != nil {
			return nil, err
		}
		a.Pos = NodePos(e.nameKey)
		actions = append(actions, a)
	}
	return actions, nil
}

func parseAction(name string, n *yaml.Node, ptr string, defaultImage Image) (Action, error) {
	a := Action{Name: name, Image: defaultImage}
	if strings.TrimSpace(name) == "" {
		return a, violation(n, ptr, "action name must not be empty")
	}
	if n.Kind != yaml.MappingNode {
		return a, violation(n, ptr, "action %q must be a mapping", name)
	}
	pairs, err := uniquePairs(n, ptr)
	if err != nil {
		return a, err
	}

	var script, use *yaml.Node
	for _, p := range pairs {
		child := PointerChild(ptr, p.Key.Value)
		switch p.Key.Value {
		case "script":
			script = p.Value
		case "use":
			use = p.Value
		case "docker":
			a.Image, err = parseImage(p.Value, child)
		case "run_always", "runAlways":
			a.RunAlways, err = boolean(p.Value, child)
		case "environment":
			a.Environment, err = parseVars(p.Value, child)
		case "parameters":
			a.Parameters, err = parseVars(p.Value, child)
		case "workdir":
			a.Workdir, err = scalar(p.Value, child)
		case "exclude_during", "excludeDuring":
			a.ExcludeDuring, err = stringList(p.Value, child)
		case "needs":
			a.Needs, err = stringList(p.Value, child)
		}
		if err != nil {
			return a, err
		}
	}

	switch {
	case script != nil && use != nil:
		return a, violation(n, ptr, "action %q declares both script and use", name)
	case script != nil:
		body, err := scalar(script, PointerChild(ptr, "script"))
		if err != nil {
			return a, err
		}
		a.Kind = Script{Body: body}
	case use != nil:
		ref, err := scalar(use, PointerChild(ptr, "use"))
		if err != nil {
			return a, err
		}
		if strings.TrimSpace(ref) == "" {
			return a, violation(use, PointerChild(ptr, "use"), "action %q has an empty use reference", name)
		}
		a.Kind = Template{Use: strings.TrimSpace(ref)}
	default:
		return a, violation(n, ptr, "action %q needs either script or use", name)
	}
	return a, nil
}

func checkNeeds(actions []Action) error {
	index := make(map[string]int, len(actions))
	for i, a := range actions {
		index[a.Name] = i
	}
	for i, a := range actions {
		for _, dep := range a.Needs {
			j, ok := index[dep]
			switch {
			case !ok:
				return violationAt(a.Pos, needsPtr(a.Name), "action %q needs unknown action %q", a.Name, dep)
			case j >= i:
				return violationAt(a.Pos, needsPtr(a.Name), "action %q needs %q which is declared at or after it", a.Name, dep)
			case actions[j].RunAlways && !a.RunAlways:
				return violationAt(a.Pos, needsPtr(a.Name), "action %q cannot need final action %q", a.Name, dep)
			}
		}
	}
	return nil
}

// varName matches names every target can bind as a variable.
var varName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidVarName reports whether name can be bound as a variable in every target.
func ValidVarName(name string) bool {
	return varName.MatchString(name)
}

func parseVars(n *yaml.Node, ptr string) (Vars, error) {
	if isNull(n) {
		return nil, nil
	}
	if n.Kind != yaml.MappingNode {
		return nil, violation(n, ptr, "%s must be a mapping", strings.TrimPrefix(ptr, "/"))
	}
	pairs, err := uniquePairs(n, ptr)
	if err != nil {
		return nil, err
	}
	vars := make(Vars, 0, len(pairs))
	for _, p := range pairs {
		child := PointerChild(ptr, p.Key.Value)
		if !ValidVarName(p.Key.Value) {
			return nil, violation(p.Key, child, "%q is not a valid variable name", p.Key.Value)
		}
		var value string
		if p.Value.Kind == yaml.SequenceNode {
			items, err := stringList(p.Value, child)
			if err != nil {
				return nil, err
			}
			value = strings.Join(items, " ")
		} else if value, err = scalar(p.Value, child); err != nil {
			return nil, err
		}
		vars = append(vars, Var{Name: p.Key.Value, Value: value})
	}
	return vars, nil
}

func uniquePairs(n *yaml.Node, ptr string) ([]Pair, error) {
	pairs := MappingPairs(n)
	seen := make(map[string]*yaml.Node, len(pairs))
	for _, p := range pairs {
		if prev, dup := seen[p.Key.Value]; dup {
			return nil, violation(p.Key, PointerChild(ptr, p.Key.Value),
				"duplicate key %q (first declared at line %d)", p.Key.Value, prev.Line)
		}
		seen[p.Key.Value] = p.Key
	}
	return pairs, nil
}

func scalar(n *yaml.Node, ptr string) (string, error) {
	if isNull(n) {
		return "", nil
	}
	if n.Kind != yaml.ScalarNode {
		return "", violation(n, ptr, "%s must be a scalar", ptr)
	}
	return n.Value, nil
}

func boolean(n *yaml.Node, ptr string) (bool, error) {
	if n.Kind != yaml.ScalarNode {
		return false, violation(n, ptr, "%s must be a boolean", ptr)
	}
	b, err := strconv.ParseBool(n.Value)
	if err != nil {
		return false, violation(n, ptr, "%s must be a boolean, got %q", ptr, n.Value)
	}
	return b, nil
}

func stringList(n *yaml.Node, ptr string) ([]string, error) {
	switch {
	case isNull(n):
		return nil, nil
	case n.Kind == yaml.ScalarNode:
		return []string{n.Value}, nil
	case n.Kind != yaml.SequenceNode:
		return nil, violation(n, ptr, "%s must be a list", ptr)
	}
	out := make([]string, 0, len(n.Content))
	for i, item := range n.Content {
		s, err := scalar(deref(item), fmt.Sprintf("%s/%d", ptr, i))
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func needsPtr(action string) string {
	return PointerChild(PointerChild("/actions", action), "needs")
}

func orNode(n, fallback *yaml.Node) *yaml.Node {
	if n != nil {
		return n
	}
	return fallback
}

func violation(n *yaml.Node, ptr, format string, args ...any) *apperror.Error {
	return violationAt(NodePos(n), ptr, format, args...)
}

func violationAt(pos apperror.Position, ptr, format string, args ...any) *apperror.Error {
	msg := fmt.Sprintf(format, args...)
	return &apperror.Error{
		Kind:    apperror.SchemaViolation,
		Message: msg,
		Markers: []apperror.Marker{apperror.ErrorAt(pos.Line, pos.Column, ptr, msg)},
	}
}
