// Package artifact describes how the upgrade service is packaged: the web
// archive name, the container image reference and the docker build arguments.
package artifact

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// ArchiveName is the fixed file name of the packaged web archive
const ArchiveName = "war.war"

// SnapshotTag replaces the version tag of snapshot builds
const SnapshotTag = "head"

const snapshotSuffix = "-SNAPSHOT"

// ErrInvalidVersion is returned for versions that are not semantic versions
var ErrInvalidVersion = errors.New("invalid version")

// buildArgProperties maps build properties to the docker build arguments they set
var buildArgProperties = map[string]string{
	"alpineApkRepositoryUrl":    "ALPINE_REPO_URL",
	"githubMirrorUrl":           "GITHUB_REPO_URL",
	"mavenCentralRepositoryUrl": "MAVEN_CENTRAL_REPO_URL",
	"apacheMavenRepositoryUrl":  "APACHE_MAVEN_REPO_URL",
}

// BuildArg is one docker --build-arg
type BuildArg struct {
	Name  string
	Value string
}

func (a BuildArg) String() string {
	return a.Name + "=" + a.Value
}

// ImageTag derives the image tag of version: "v<semver>", or "head" for
// snapshot versions
func ImageTag(version string) (string, error) {
	if strings.HasSuffix(version, snapshotSuffix) {
		if _, err := semver.NewVersion(strings.TrimSuffix(version, snapshotSuffix)); err != nil {
			return "", fmt.Errorf("%w %q: %w", ErrInvalidVersion, version, err)
		}
		return SnapshotTag, nil
	}

	v, err := semver.NewVersion(version)
	if err != nil {
		return "", fmt.Errorf("%w %q: %w", ErrInvalidVersion, version, err)
	}
	return "v" + v.String(), nil
}

// ImageRef builds "<registry>/<repo>:<tag>". An empty registry is left out.
func ImageRef(registry, repo, version string) (string, error) {
	if repo == "" {
		return "", errors.New("image repository must not be empty")
	}
	tag, err := ImageTag(version)
	if err != nil {
		return "", err
	}
	name := repo
	if registry != "" {
		name = strings.TrimRight(registry, "/") + "/" + repo
	}
	return name + ":" + tag, nil
}

// BuildArgs turns the set mirror properties into build arguments, sorted by
// name. Unknown and empty properties are ignored.
func BuildArgs(props map[string]string) []BuildArg {
	var args []BuildArg
	for prop, arg := range buildArgProperties {
		if v := props[prop]; v != "" {
			args = append(args, BuildArg{Name: arg, Value: v})
		}
	}
	sort.Slice(args, func(i, j int) bool { return args[i].Name < args[j].Name })
	return args
}

// ParseProperties parses "key=value" pairs
func ParseProperties(raw []string) (map[string]string, error) {
	props := make(map[string]string, len(raw))
	for _, p := range raw {
		key, value, ok := strings.Cut(p, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid property %q: expected key=value", p)
		}
		props[key] = value
	}
	return props, nil
}

// Plan is everything needed to package one version
type Plan struct {
	Version   string
	Archive   string
	Image     string
	BuildArgs []BuildArg
}

// NewPlan builds the packaging plan of version
func NewPlan(registry, repo, version string, props map[string]string) (*Plan, error) {
	image, err := ImageRef(registry, repo, version)
	if err != nil {
		return nil, err
	}
	return &Plan{
		Version:   version,
		Archive:   ArchiveName,
		Image:     image,
		BuildArgs: BuildArgs(props),
	}, nil
}

// DockerArgs renders the plan as docker build arguments
func (p *Plan) DockerArgs() []string {
	args := []string{"build", "--tag", p.Image}
	for _, a := range p.BuildArgs {
		args = append(args, "--build-arg", a.String())
	}
	return args
}
