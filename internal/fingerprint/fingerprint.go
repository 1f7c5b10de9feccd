// Package fingerprint derives stable keys for generated artifacts.
package fingerprint

import (
	"windci/internal/core"
	"windci/pkg/utils"
)

// version is bumped whenever the encoding below changes.
const version = "windci-fingerprint/1"

// Compute returns a hex key over the semantic content of def and target.
// Source positions and fetched template content do not participate.
func Compute(def *core.PipelineDefinition, target core.Target) string {
	d := utils.NewDigest().Field(version).Field(def.API)

	md := def.Metadata
	d.Field(md.Name).Field(md.ID).Field(md.Description)
	d.Field(md.Author.Name).Field(md.Author.Email)
	d.Field(md.GitCredentials)
	image(d, md.Docker)

	vars(d, def.Environment)

	d.Count(len(def.Repositories))
	for _, r := range def.Repositories {
		d.Field(r.Name).Field(r.URL).Field(r.Branch).Field(r.Path)
	}

	d.Count(len(def.Actions))
	for _, a := range def.Actions {
		d.Field(a.Name)
		switch k := a.Kind.(type) {
		case core.Script:
			d.Field("script").Field(k.Body)
		case core.Template:
			d.Field("template").Field(k.Use)
		}
		image(d, a.Image)
		d.Bool(a.RunAlways)
		vars(d, a.Environment)
		vars(d, a.Parameters)
		d.Field(a.Workdir)
		d.Strings(a.ExcludeDuring)
		d.Strings(a.Needs)
	}

	return d.Field(string(target)).Hex()
}

func image(d *utils.Digest, img core.Image) {
	d.Field(img.Ref()).Strings(img.Volumes).Strings(img.RunArgs)
}

func vars(d *utils.Digest, v core.Vars) {
	d.Count(len(v))
	for _, kv := range v {
		d.Field(kv.Name).Field(kv.Value)
	}
}
