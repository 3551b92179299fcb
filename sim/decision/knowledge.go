package decision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/dinebot-sim/dinebot-sim/sim"
)

// Document is one rule in a knowledge base. Keywords are matched against the words of
// a decision query; Action is what the rule recommends.
type Document struct {
	ID        string   `yaml:"id" json:"id"`
	Keywords  []string `yaml:"keywords" json:"keywords"`
	Action    string   `yaml:"action" json:"action"`
	WaitTicks int64    `yaml:"wait_ticks,omitempty" json:"wait_ticks,omitempty"`
	Content   string   `yaml:"content,omitempty" json:"content,omitempty"`
}

// Match is a ranked search hit.
type Match struct {
	Document Document
	Score    int // number of matched keywords
}

// KnowledgeBase is an immutable, ranked collection of rule documents. It is safe for
// concurrent readers and may be shared across runs.
type KnowledgeBase struct {
	docs []Document // sorted by ID
}

// NewKnowledgeBase validates docs and builds a knowledge base.
func NewKnowledgeBase(docs []Document) (*KnowledgeBase, error) {
	seen := make(map[string]bool, len(docs))
	kb := &KnowledgeBase{docs: make([]Document, 0, len(docs))}
	for i, d := range docs {
		if d.ID == "" {
			return nil, fmt.Errorf("knowledge document %d: id is required", i)
		}
		if seen[d.ID] {
			return nil, fmt.Errorf("knowledge document %q: duplicate id", d.ID)
		}
		seen[d.ID] = true
		if !sim.ValidActions[sim.Action(d.Action)] {
			return nil, fmt.Errorf("knowledge document %q: unknown action %q", d.ID, d.Action)
		}
		if d.WaitTicks < 0 {
			return nil, fmt.Errorf("knowledge document %q: wait_ticks must be non-negative", d.ID)
		}
		if len(d.Keywords) == 0 {
			return nil, fmt.Errorf("knowledge document %q: at least one keyword is required", d.ID)
		}
		kws := make([]string, len(d.Keywords))
		for k, kw := range d.Keywords {
			kws[k] = normalize(kw)
		}
		d.Keywords = kws
		kb.docs = append(kb.docs, d)
	}
	sort.Slice(kb.docs, func(i, j int) bool { return kb.docs[i].ID < kb.docs[j].ID })
	return kb, nil
}

// Len returns the number of documents.
func (kb *KnowledgeBase) Len() int { return len(kb.docs) }

// Documents returns a copy of the documents in ID order.
func (kb *KnowledgeBase) Documents() []Document {
	return append([]Document(nil), kb.docs...)
}

// Search returns up to topK documents sharing at least one keyword with query, ranked by
// matched keyword count (descending), ties broken by ID. A keyword of several words
// matches only as a whole phrase.
func (kb *KnowledgeBase) Search(query string, topK int) []Match {
	q := " " + normalize(query) + " "
	var matches []Match
	for _, d := range kb.docs {
		score := 0
		for _, kw := range d.Keywords {
			if kw != "" && strings.Contains(q, " "+kw+" ") {
				score++
			}
		}
		if score > 0 {
			matches = append(matches, Match{Document: d, Score: score})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches
}

// normalize lower-cases s and collapses every run of non-alphanumerics to one space.
func normalize(s string) string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	return strings.Join(fields, " ")
}

// DefaultDocuments is the knowledge used when a rules provider is given no source.
func DefaultDocuments() []Document {
	return []Document{
		{ID: "kb-001", Keywords: []string{"person", "customer", "guest", "walking"}, Action: "wait", WaitTicks: 2,
			Content: "People move on their own; hold position briefly and let them pass."},
		{ID: "kb-002", Keywords: []string{"chair", "cart", "box", "static"}, Action: "reroute",
			Content: "Furniture and carts rarely move within seconds; plan around them."},
		{ID: "kb-003", Keywords: []string{"spill", "closed", "cleaning"}, Action: "report_unreachable",
			Content: "A closed or wet aisle is unsafe; report the table unreachable."},
		{ID: "kb-004", Keywords: []string{"obstacle"}, Action: "reroute",
			Content: "When the obstacle is unknown, look for a new path."},
	}
}

// KnowledgeSource supplies rule documents.
type KnowledgeSource interface {
	Load(ctx context.Context) ([]Document, error)
}

// FileSource reads documents from a YAML or JSON file: either a list of documents or an
// object with a "documents" list.
type FileSource struct {
	Path string
}

func (f FileSource) Load(_ context.Context) ([]Document, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("reading knowledge file: %w", err)
	}
	return parseDocuments(data)
}

func parseDocuments(data []byte) ([]Document, error) {
	var list []Document
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&list); err == nil {
		return list, nil
	}
	var wrapped struct {
		Documents []Document `yaml:"documents"`
	}
	decoder = yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&wrapped); err != nil {
		return nil, fmt.Errorf("parsing knowledge file: %w", err)
	}
	return wrapped.Documents, nil
}

// RedisKnowledgeSource reads documents stored as JSON strings in a Redis list, so several
// simulator processes can share one knowledge base.
type RedisKnowledgeSource struct {
	Client redis.UniversalClient
	Key    string
}

func (r RedisKnowledgeSource) Load(ctx context.Context) ([]Document, error) {
	raw, err := r.Client.LRange(ctx, r.Key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("reading knowledge list %q: %w", r.Key, err)
	}
	docs := make([]Document, 0, len(raw))
	for i, s := range raw {
		var d Document
		if err := json.Unmarshal([]byte(s), &d); err != nil {
			return nil, fmt.Errorf("knowledge list %q entry %d: %w", r.Key, i, err)
		}
		docs = append(docs, d)
	}
	logrus.Debugf("loaded %d knowledge documents from redis list %q", len(docs), r.Key)
	return docs, nil
}

// Store replaces the list with docs.
func (r RedisKnowledgeSource) Store(ctx context.Context, docs []Document) error {
	values := make([]any, len(docs))
	for i, d := range docs {
		b, err := json.Marshal(d)
		if err != nil {
			return err
		}
		values[i] = string(b)
	}
	pipe := r.Client.TxPipeline()
	pipe.Del(ctx, r.Key)
	if len(values) > 0 {
		pipe.RPush(ctx, r.Key, values...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("writing knowledge list %q: %w", r.Key, err)
	}
	return nil
}

// LoadKnowledgeBase loads and validates documents from src.
func LoadKnowledgeBase(ctx context.Context, src KnowledgeSource) (*KnowledgeBase, error) {
	docs, err := src.Load(ctx)
	if err != nil {
		return nil, err
	}
	return NewKnowledgeBase(docs)
}
