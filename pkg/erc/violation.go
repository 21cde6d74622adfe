package erc

import (
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/OpenTraceLab/OpenTraceERC/pkg/layout"
)

// violationNamespace seeds the name-based violation ids.
var violationNamespace = uuid.MustParse("6f1c2a51-3f0e-4d55-9a0c-5b7c1f1e8a42")

// Violation is one finding of one check against one subject.
type Violation struct {
	ID          string            `json:"id" yaml:"id"`
	RuleKey     string            `json:"rule" yaml:"rule"`
	Severity    Severity          `json:"severity" yaml:"severity"`
	Subjects    []layout.ObjectID `json:"subjects" yaml:"subjects"`
	Net         string            `json:"net,omitempty" yaml:"net,omitempty"`
	Layer       int               `json:"layer" yaml:"layer"`
	Description string            `json:"description" yaml:"description"`
	State       ReviewState       `json:"state" yaml:"state"`

	// Origin names the failing check for erc.check_failed violations.
	Origin string `json:"origin,omitempty" yaml:"origin,omitempty"`
}

// Key is the identity a violation keeps across runs: rule key plus the
// sorted subject ids.
type Key struct {
	Rule    string
	Subject string
}

// SubjectSignature normalises a subject list.
func SubjectSignature(origin string, subjects []layout.ObjectID) string {
	ids := append([]layout.ObjectID(nil), subjects...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var b strings.Builder
	if origin != "" {
		b.WriteString(origin)
		b.WriteByte(':')
	}
	for i, id := range ids {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatUint(uint64(id), 10))
	}
	return b.String()
}

// Key returns the review identity of v.
func (v *Violation) Key() Key {
	return Key{Rule: v.RuleKey, Subject: SubjectSignature(v.Origin, v.Subjects)}
}

// String renders the key as a single string.
func (k Key) String() string {
	return k.Rule + "|" + k.Subject
}

// IDFor derives the deterministic violation id for a key.
func IDFor(k Key) string {
	return uuid.NewSHA1(violationNamespace, []byte(k.String())).String()
}

// sortViolations orders by layer, then first subject id, then rule key.
func sortViolations(vs []Violation) {
	sort.SliceStable(vs, func(i, j int) bool {
		a, b := &vs[i], &vs[j]
		if a.Layer != b.Layer {
			return a.Layer < b.Layer
		}
		sa, sb := firstSubject(a), firstSubject(b)
		if sa != sb {
			return sa < sb
		}
		if a.RuleKey != b.RuleKey {
			return a.RuleKey < b.RuleKey
		}
		return a.Key().Subject < b.Key().Subject
	})
}

func firstSubject(v *Violation) layout.ObjectID {
	if len(v.Subjects) == 0 {
		return 0
	}
	return v.Subjects[0]
}
