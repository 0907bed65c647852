package build

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// LayerEvent is one completed Dockerfile instruction from buildx output.
type LayerEvent struct {
	Step        string // "3/7"
	Instruction string // FROM, RUN, COPY, ...
	Detail      string
	Cached      bool
	Duration    time.Duration
}

var (
	// #N [stage M/N] INSTRUCTION args...
	layerStartRe = regexp.MustCompile(`^#(\d+) \[[^\]]*?(\d+/\d+)\] (\w+)\s*(.*)`)
	// #N CACHED
	cachedRe = regexp.MustCompile(`^#(\d+) CACHED`)
	// #N DONE 44.8s
	doneRe = regexp.MustCompile(`^#(\d+) DONE (\d+\.?\d*)s`)
	// ... digest: sha256:<hex> size: N
	digestRe = regexp.MustCompile(`digest: (sha256:[a-f0-9]{64})`)
)

// ParseBuildxOutput turns buildx --progress=plain output into the completed
// instruction layers, in step order. Internal steps are dropped.
func ParseBuildxOutput(output string) []LayerEvent {
	type state struct {
		ev   LayerEvent
		done bool
	}
	layers := map[int]*state{}

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)

		if m := layerStartRe.FindStringSubmatch(line); m != nil {
			n, _ := strconv.Atoi(m[1])
			detail := m[4]
			if len(detail) > 60 {
				detail = detail[:57] + "..."
			}
			layers[n] = &state{ev: LayerEvent{Step: m[2], Instruction: m[3], Detail: detail}}
			continue
		}
		if m := cachedRe.FindStringSubmatch(line); m != nil {
			n, _ := strconv.Atoi(m[1])
			if s, ok := layers[n]; ok {
				s.ev.Cached, s.done = true, true
			}
			continue
		}
		if m := doneRe.FindStringSubmatch(line); m != nil {
			n, _ := strconv.Atoi(m[1])
			secs, _ := strconv.ParseFloat(m[2], 64)
			if s, ok := layers[n]; ok {
				s.ev.Duration = time.Duration(secs * float64(time.Second))
				s.done = true
			}
		}
	}

	keys := make([]int, 0, len(layers))
	for k, s := range layers {
		if s.done {
			keys = append(keys, k)
		}
	}
	sort.Ints(keys)

	events := make([]LayerEvent, 0, len(keys))
	for _, k := range keys {
		events = append(events, layers[k].ev)
	}
	return events
}

// ParseDigest returns the last manifest digest reported by docker push.
func ParseDigest(output string) string {
	m := digestRe.FindAllStringSubmatch(output, -1)
	if len(m) == 0 {
		return ""
	}
	return m[len(m)-1][1]
}

// FormatLayerTiming returns "cached" or the layer duration.
func FormatLayerTiming(e LayerEvent) string {
	if e.Cached {
		return "cached"
	}
	if e.Duration >= time.Minute {
		return strconv.FormatFloat(e.Duration.Minutes(), 'f', 1, 64) + "m"
	}
	return strconv.FormatFloat(e.Duration.Seconds(), 'f', 1, 64) + "s"
}
