package build

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sofmeright/artifreight/src/artifact"
	"github.com/sofmeright/artifreight/src/config"
)

// IgnoreSuffix names the per-Dockerfile ignore file BuildKit reads from
// next to the Dockerfile.
const IgnoreSuffix = ".dockerignore"

var (
	// FROM [--platform=...] <image> [AS <name>]
	fromRe = regexp.MustCompile(`(?i)^FROM\s+(?:--platform=\S+\s+)?(\S+)(?:\s+AS\s+(\S+))?`)
	// ARG <name>[=<default>]
	argRe = regexp.MustCompile(`(?i)^ARG\s+(\S+?)(?:=.*)?$`)
	// EXPOSE <port>[/<proto>]
	exposeRe = regexp.MustCompile(`(?i)^EXPOSE\s+(.+)`)
)

// DockerfileInfo is what ParseDockerfile extracts from a Dockerfile.
type DockerfileInfo struct {
	BaseImages []string
	Args       []string
	Expose     []string
}

// ParseDockerfile extracts base images, ARG names, and exposed ports.
// Regex based, not a full AST; enough to decide which build args to inject.
func ParseDockerfile(data []byte) (*DockerfileInfo, error) {
	info := &DockerfileInfo{}
	scanner := bufio.NewScanner(bytes.NewReader(data))

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if m := fromRe.FindStringSubmatch(line); m != nil {
			info.BaseImages = append(info.BaseImages, m[1])
			continue
		}
		if m := argRe.FindStringSubmatch(line); m != nil {
			info.Args = append(info.Args, m[1])
			continue
		}
		if m := exposeRe.FindStringSubmatch(line); m != nil {
			info.Expose = append(info.Expose, strings.Fields(m[1])...)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(info.BaseImages) == 0 {
		return nil, fmt.Errorf("no FROM instruction found")
	}
	return info, nil
}

// InjectBuildArgs adds VERSION, ARTIFACT_NAME, and BUILD_DATE when the
// Dockerfile declares the ARG and no explicit value exists. Explicit values
// have their placeholders expanded.
func InjectBuildArgs(explicit map[string]string, declared []string, spec artifact.Spec, now time.Time) map[string]string {
	out := make(map[string]string, len(explicit)+3)
	for k, v := range explicit {
		out[k] = ExpandTemplate(v, spec)
	}

	auto := map[string]string{
		"VERSION":       spec.Version,
		"ARTIFACT_NAME": spec.Name,
		"BUILD_DATE":    now.UTC().Format(time.RFC3339),
	}
	for _, a := range declared {
		v, ok := auto[a]
		if !ok {
			continue
		}
		if _, set := out[a]; !set {
			out[a] = v
		}
	}
	return out
}

// Render produces a Dockerfile from the declarative runtime description.
// The staged root is the build context and is copied into Workdir.
func Render(img config.ImageConfig) []byte {
	var b strings.Builder

	fmt.Fprintf(&b, "FROM %s\n\n", img.Base)
	b.WriteString("ARG VERSION\nARG ARTIFACT_NAME\nARG BUILD_DATE\n\n")
	b.WriteString("LABEL org.opencontainers.image.version=\"${VERSION}\" \\\n")
	b.WriteString("      org.opencontainers.image.title=\"${ARTIFACT_NAME}\" \\\n")
	b.WriteString("      org.opencontainers.image.created=\"${BUILD_DATE}\"\n\n")

	if len(img.Packages) > 0 {
		fmt.Fprintf(&b, "RUN %s\n\n", installCommand(img.Base, img.Packages))
	}

	workdir := img.Workdir
	if workdir == "" {
		workdir = "/app"
	}
	fmt.Fprintf(&b, "WORKDIR %s\n", workdir)
	b.WriteString("COPY . .\n")

	keys := make([]string, 0, len(img.Env))
	for k := range img.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "ENV %s=%s\n", k, strconv.Quote(img.Env[k]))
	}

	if len(img.Expose) > 0 {
		fmt.Fprintf(&b, "EXPOSE %s\n", strings.Join(img.Expose, " "))
	}

	quoted := make([]string, len(img.Cmd))
	for i, c := range img.Cmd {
		quoted[i] = strconv.Quote(c)
	}
	fmt.Fprintf(&b, "CMD [%s]\n", strings.Join(quoted, ", "))

	return []byte(b.String())
}

// installCommand picks the package manager from the base image name.
func installCommand(base string, pkgs []string) string {
	list := strings.Join(pkgs, " ")
	name := strings.ToLower(base)
	switch {
	case strings.Contains(name, "alpine"):
		return "apk add --no-cache " + list
	case strings.Contains(name, "fedora"), strings.Contains(name, "rocky"),
		strings.Contains(name, "alma"), strings.Contains(name, "ubi"),
		strings.Contains(name, "centos"):
		return "dnf install -y " + list + " && dnf clean all"
	default:
		return "apt-get update && DEBIAN_FRONTEND=noninteractive apt-get install -y --no-install-recommends " +
			list + " && rm -rf /var/lib/apt/lists/*"
	}
}

// WriteDockerfile writes the Dockerfile for img into dir together with an
// ignore file listing exclude, and returns its path and the final build
// args. A hand-written image.dockerfile is copied rather than rendered.
func WriteDockerfile(dir string, img config.ImageConfig, spec artifact.Spec, exclude []string, now time.Time) (string, map[string]string, error) {
	var data []byte
	if img.Dockerfile != "" {
		raw, err := os.ReadFile(img.Dockerfile)
		if err != nil {
			return "", nil, fmt.Errorf("reading dockerfile: %w", err)
		}
		data = raw
	} else {
		data = Render(img)
	}

	info, err := ParseDockerfile(data)
	if err != nil {
		return "", nil, fmt.Errorf("parsing dockerfile: %w", err)
	}

	path := filepath.Join(dir, "Dockerfile")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", nil, err
	}
	ignore := strings.Join(exclude, "\n") + "\n"
	if err := os.WriteFile(path+IgnoreSuffix, []byte(ignore), 0o644); err != nil {
		return "", nil, err
	}

	return path, InjectBuildArgs(img.BuildArgs, info.Args, spec, now), nil
}
