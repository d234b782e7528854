package observability

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// The process exposes a few dozen metric families at most, so the scrape
// endpoint renders them from an in-memory registry instead of pulling in a
// client library. Families register once at startup; series materialize the
// first time a label combination is touched.

type metricKind int

const (
	kindCounter metricKind = iota
	kindGauge
	kindHistogram
)

func (k metricKind) String() string {
	switch k {
	case kindCounter:
		return "counter"
	case kindGauge:
		return "gauge"
	default:
		return "histogram"
	}
}

type registry struct {
	families []*family
}

func (r *registry) counter(name, help string, labels ...string) *family {
	return r.register(&family{name: name, help: help, kind: kindCounter, labels: labels})
}

func (r *registry) gauge(name, help string, labels ...string) *family {
	return r.register(&family{name: name, help: help, kind: kindGauge, labels: labels})
}

func (r *registry) histogram(name, help string, bounds []float64, labels ...string) *family {
	if len(bounds) == 0 {
		bounds = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5}
	}
	return r.register(&family{name: name, help: help, kind: kindHistogram, labels: labels, buckets: bounds})
}

func (r *registry) register(f *family) *family {
	f.series = map[string]*series{}
	// Label-less counters and gauges expose a zero sample from the start so
	// scrapes see the family before the first event.
	if len(f.labels) == 0 && f.kind != kindHistogram {
		f.series[""] = &series{}
	}
	r.families = append(r.families, f)
	return f
}

// render emits the whole registry in Prometheus text format. Output is built
// in one buffer so a slow reader never holds family locks.
func (r *registry) render(w io.Writer) error {
	var buf bytes.Buffer
	for _, f := range r.families {
		f.renderTo(&buf)
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// family is one named metric with a fixed label schema. buckets is set for
// histograms only and holds the ascending upper bounds.
type family struct {
	name    string
	help    string
	kind    metricKind
	labels  []string
	buckets []float64

	mu     sync.Mutex
	series map[string]*series
}

type series struct {
	labelValues []string

	value float64 // counter or gauge

	sum       float64  // histogram
	count     uint64   // histogram
	perBucket []uint64 // histogram, one slot per bound plus one for +Inf
}

func (f *family) add(v float64, labelValues ...string) {
	if f == nil {
		return
	}
	f.mu.Lock()
	f.touch(labelValues).value += v
	f.mu.Unlock()
}

func (f *family) inc(labelValues ...string) {
	f.add(1, labelValues...)
}

func (f *family) set(v float64, labelValues ...string) {
	if f == nil {
		return
	}
	f.mu.Lock()
	f.touch(labelValues).value = v
	f.mu.Unlock()
}

func (f *family) observe(v float64, labelValues ...string) {
	if f == nil {
		return
	}
	f.mu.Lock()
	s := f.touch(labelValues)
	s.sum += v
	s.count++
	s.perBucket[sort.SearchFloat64s(f.buckets, v)]++
	f.mu.Unlock()
}

// total sums the family across all series. For the label-less counters the
// burn-rate math reads, this is the single series value.
func (f *family) total() float64 {
	if f == nil {
		return 0
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var sum float64
	for _, s := range f.series {
		sum += s.value
	}
	return sum
}

// touch returns the series for the given label values, creating it on first
// use. Short or long value lists are padded or cut to the schema. Callers
// hold f.mu.
func (f *family) touch(labelValues []string) *series {
	if len(labelValues) != len(f.labels) {
		fixed := make([]string, len(f.labels))
		for i := range fixed {
			if i < len(labelValues) {
				fixed[i] = labelValues[i]
			} else {
				fixed[i] = "unknown"
			}
		}
		labelValues = fixed
	}
	key := strings.Join(labelValues, "\xff")
	s, ok := f.series[key]
	if !ok {
		s = &series{labelValues: labelValues}
		if f.kind == kindHistogram {
			s.perBucket = make([]uint64, len(f.buckets)+1)
		}
		f.series[key] = s
	}
	return s
}

func (f *family) renderTo(buf *bytes.Buffer) {
	fmt.Fprintf(buf, "# HELP %s %s\n", f.name, f.help)
	fmt.Fprintf(buf, "# TYPE %s %s\n", f.name, f.kind)
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.series))
	for k := range f.series {
		keys = append(keys, k)
	}
	// Sorted series keep scrape diffs and tests stable.
	sort.Strings(keys)
	for _, k := range keys {
		s := f.series[k]
		if f.kind == kindHistogram {
			f.renderHistogram(buf, s)
			continue
		}
		fmt.Fprintf(buf, "%s%s %s\n", f.name, labelBlock(f.labels, s.labelValues, ""), formatSample(s.value))
	}
}

func (f *family) renderHistogram(buf *bytes.Buffer, s *series) {
	var cum uint64
	for i, bound := range f.buckets {
		cum += s.perBucket[i]
		fmt.Fprintf(buf, "%s_bucket%s %d\n", f.name, labelBlock(f.labels, s.labelValues, formatSample(bound)), cum)
	}
	fmt.Fprintf(buf, "%s_bucket%s %d\n", f.name, labelBlock(f.labels, s.labelValues, "+Inf"), s.count)
	fmt.Fprintf(buf, "%s_sum%s %s\n", f.name, labelBlock(f.labels, s.labelValues, ""), formatSample(s.sum))
	fmt.Fprintf(buf, "%s_count%s %d\n", f.name, labelBlock(f.labels, s.labelValues, ""), s.count)
}

// labelBlock renders {name="value",...}. le, when non-empty, is appended so
// histogram bucket lines carry the series labels plus the bound.
func labelBlock(names, values []string, le string) string {
	if len(names) == 0 && le == "" {
		return ""
	}
	var b strings.Builder
	b.WriteByte('{')
	for i, name := range names {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(name)
		b.WriteString(`="`)
		b.WriteString(escapeLabelValue(values[i]))
		b.WriteByte('"')
	}
	if le != "" {
		if len(names) > 0 {
			b.WriteByte(',')
		}
		b.WriteString(`le="`)
		b.WriteString(le)
		b.WriteByte('"')
	}
	b.WriteByte('}')
	return b.String()
}

func escapeLabelValue(v string) string {
	if !strings.ContainsAny(v, "\\\"\n") {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `"`, `\"`)
	v = strings.ReplaceAll(v, "\n", `\n`)
	return v
}

func formatSample(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
