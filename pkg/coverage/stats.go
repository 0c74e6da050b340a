package coverage

import (
	"sort"

	"github.com/devicelab-dev/tagscout/pkg/traffic"
)

const maxSamples = 5

// DomainStat summarises the requests sent to one host.
type DomainStat struct {
	Host     string           `json:"host"`
	Category traffic.Category `json:"category"`
	Count    int              `json:"count"`
	Methods  map[string]int   `json:"methods"`
	Paths    int              `json:"paths"` // distinct paths
}

// ParamStat summarises one parameter of an event type.
type ParamStat struct {
	Key     string   `json:"key"`
	Count   int      `json:"count"`
	Samples []string `json:"samples"`
	Types   []string `json:"types"`
}

// EventStat summarises one event type.
type EventStat struct {
	Name   string      `json:"name"`
	Count  int         `json:"count"`
	Hosts  []string    `json:"hosts"`
	Params []ParamStat `json:"params"`
}

// Bucket is one band of the trigger-latency histogram.
type Bucket struct {
	Label   string  `json:"label"`
	Count   int     `json:"count"`
	Percent float64 `json:"percent"`
}

// Domains groups requests by host, busiest first.
func Domains(records []traffic.Record) []DomainStat {
	byHost := make(map[string]*DomainStat)
	paths := make(map[string]map[string]bool)

	for _, r := range records {
		host := r.Host
		if host == "" {
			host = "unknown"
		}
		s, ok := byHost[host]
		if !ok {
			s = &DomainStat{Host: host, Category: r.Category, Methods: make(map[string]int)}
			byHost[host] = s
			paths[host] = make(map[string]bool)
		}
		s.Count++
		s.Methods[r.Method]++
		paths[host][r.Path] = true
	}

	out := make([]DomainStat, 0, len(byHost))
	for host, s := range byHost {
		s.Paths = len(paths[host])
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Host < out[j].Host
	})
	return out
}

type hostEvent struct {
	Event
	host string
}

// Events groups extracted events by name, most frequent first.
func Events(events []hostEvent) []EventStat {
	type paramAcc struct {
		count   int
		samples []string
		seen    map[string]bool
		types   map[string]bool
	}
	type eventAcc struct {
		count  int
		hosts  map[string]bool
		params map[string]*paramAcc
		order  []string
	}

	acc := make(map[string]*eventAcc)
	for _, e := range events {
		a, ok := acc[e.Name]
		if !ok {
			a = &eventAcc{hosts: make(map[string]bool), params: make(map[string]*paramAcc)}
			acc[e.Name] = a
		}
		a.count++
		if e.host != "" {
			a.hosts[e.host] = true
		}
		for _, p := range e.Params {
			pa, ok := a.params[p.Key]
			if !ok {
				pa = &paramAcc{seen: make(map[string]bool), types: make(map[string]bool)}
				a.params[p.Key] = pa
				a.order = append(a.order, p.Key)
			}
			pa.count++
			pa.types[p.Value.TypeName()] = true
			sample := truncate(p.Value.String(), 50)
			if !pa.seen[sample] && len(pa.samples) < maxSamples {
				pa.seen[sample] = true
				pa.samples = append(pa.samples, sample)
			}
		}
	}

	out := make([]EventStat, 0, len(acc))
	for name, a := range acc {
		es := EventStat{Name: name, Count: a.count, Hosts: sortedKeys(a.hosts)}
		for _, key := range a.order {
			pa := a.params[key]
			es.Params = append(es.Params, ParamStat{
				Key:     key,
				Count:   pa.count,
				Samples: pa.samples,
				Types:   sortedKeys(pa.types),
			})
		}
		out = append(out, es)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// AvgParams returns the mean number of distinct parameters per event type.
func AvgParams(stats []EventStat) float64 {
	if len(stats) == 0 {
		return 0
	}
	total := 0
	for _, s := range stats {
		total += len(s.Params)
	}
	return float64(total) / float64(len(stats))
}

var latencyBands = []struct {
	label string
	below int64
}{
	{"instant (<500ms)", 500},
	{"fast (500ms-2s)", 2000},
	{"normal (2s-5s)", 5000},
	{"delayed (5s-10s)", 10000},
	{"slow (>=10s)", -1},
}

// LatencyBuckets bands requests by the gap since the last user action.
func LatencyBuckets(records []traffic.Record) []Bucket {
	out := make([]Bucket, len(latencyBands))
	for i, b := range latencyBands {
		out[i].Label = b.label
	}
	for _, r := range records {
		for i, b := range latencyBands {
			if b.below < 0 || r.ActionGapMs < b.below {
				out[i].Count++
				break
			}
		}
	}
	if n := len(records); n > 0 {
		for i := range out {
			out[i].Percent = float64(out[i].Count) / float64(n) * 100
		}
	}
	return out
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
