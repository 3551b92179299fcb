package decision

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dinebot-sim/dinebot-sim/sim"
)

func TestMain(m *testing.M) {
	logrus.SetOutput(os.Stderr)
	logrus.SetLevel(logrus.ErrorLevel)
	os.Exit(m.Run())
}

func int64Ptr(v int64) *int64 { return &v }
func intPtr(v int) *int       { return &v }

func sampleRequest(note string) sim.DecisionRequest {
	return sim.DecisionRequest{
		RobotID:  "r1",
		Tick:     7,
		Position: sim.Cell{X: 2, Y: 1},
		Goal:     sim.Cell{X: 2, Y: 3},
		Obstacle: sim.Cell{X: 2, Y: 2},
		Context:  note,
	}
}

func TestKnowledgeBase_Search_RanksByOverlapThenID(t *testing.T) {
	// GIVEN documents with overlapping keywords
	kb, err := NewKnowledgeBase([]Document{
		{ID: "b", Keywords: []string{"chair"}, Action: "reroute"},
		{ID: "a", Keywords: []string{"chair"}, Action: "wait"},
		{ID: "c", Keywords: []string{"chair", "blocking"}, Action: "report_unreachable"},
		{ID: "d", Keywords: []string{"spill"}, Action: "wait"},
	})
	require.NoError(t, err)

	// WHEN searching for a query that mentions both words of c
	got := kb.Search("A CHAIR is blocking the aisle", 0)

	// THEN c ranks first, then the single-keyword ties in id order; d is absent
	require.Len(t, got, 3)
	assert.Equal(t, "c", got[0].Document.ID)
	assert.Equal(t, 2, got[0].Score)
	assert.Equal(t, "a", got[1].Document.ID)
	assert.Equal(t, "b", got[2].Document.ID)
}

func TestKnowledgeBase_Search_TopKAndPhrases(t *testing.T) {
	kb, err := NewKnowledgeBase([]Document{
		{ID: "1", Keywords: []string{"wet floor"}, Action: "report_unreachable"},
		{ID: "2", Keywords: []string{"floor"}, Action: "reroute"},
		{ID: "3", Keywords: []string{"floor"}, Action: "wait"},
	})
	require.NoError(t, err)

	// A multi-word keyword matches only as a phrase
	assert.Len(t, kb.Search("the floor is wet", 0), 2)
	got := kb.Search("careful: wet floor ahead", 0)
	require.Len(t, got, 3)
	assert.Equal(t, "1", got[0].Document.ID)

	// topK truncates after ranking
	assert.Len(t, kb.Search("careful: wet floor ahead", 2), 2)
}

func TestNewKnowledgeBase_Errors(t *testing.T) {
	tests := []struct {
		name string
		docs []Document
	}{
		{"missing id", []Document{{Keywords: []string{"x"}, Action: "wait"}}},
		{"duplicate id", []Document{{ID: "a", Keywords: []string{"x"}, Action: "wait"}, {ID: "a", Keywords: []string{"y"}, Action: "wait"}}},
		{"unknown action", []Document{{ID: "a", Keywords: []string{"x"}, Action: "dance"}}},
		{"negative wait", []Document{{ID: "a", Keywords: []string{"x"}, Action: "wait", WaitTicks: -1}}},
		{"no keywords", []Document{{ID: "a", Action: "wait"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewKnowledgeBase(tt.docs)
			assert.Error(t, err)
		})
	}
}

func TestRulesProvider_DefaultKnowledge(t *testing.T) {
	kb, err := NewKnowledgeBase(DefaultDocuments())
	require.NoError(t, err)
	p := NewRulesProvider(kb, 0, "", 1)

	t.Run("plain obstacle reroutes", func(t *testing.T) {
		resp, err := p.Decide(context.Background(), sampleRequest(""))
		require.NoError(t, err)
		assert.Equal(t, sim.ActionReroute, resp.Action)
	})

	t.Run("a guest in the way means wait with the rule's hint", func(t *testing.T) {
		resp, err := p.Decide(context.Background(), sampleRequest("a guest is walking past"))
		require.NoError(t, err)
		assert.Equal(t, sim.ActionWait, resp.Action)
		assert.Equal(t, int64(2), resp.WaitTicks)
	})

	t.Run("spill reports unreachable", func(t *testing.T) {
		resp, err := p.Decide(context.Background(), sampleRequest("cleaning a spill, aisle closed"))
		require.NoError(t, err)
		assert.Equal(t, sim.ActionReportUnreachable, resp.Action)
	})
}

func TestRulesProvider_NoMatch_UsesFallback(t *testing.T) {
	// GIVEN a knowledge base that matches nothing in a standard request
	kb, err := NewKnowledgeBase([]Document{{ID: "x", Keywords: []string{"zebra"}, Action: "reroute"}})
	require.NoError(t, err)
	p := NewRulesProvider(kb, 1, sim.ActionWait, 3)

	// WHEN asked
	resp, err := p.Decide(context.Background(), sampleRequest(""))

	// THEN the fallback answers, with the provider's wait hint
	require.NoError(t, err)
	assert.Equal(t, sim.ActionWait, resp.Action)
	assert.Equal(t, int64(3), resp.WaitTicks)
}

func TestRulesProvider_CancelledContext(t *testing.T) {
	kb, err := NewKnowledgeBase(DefaultDocuments())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewRulesProvider(kb, 0, "", 0).Decide(ctx, sampleRequest(""))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScriptProvider_HoldsLastOrCycles(t *testing.T) {
	script := []sim.Action{sim.ActionWait, sim.ActionReroute}
	next := func(p *ScriptProvider) sim.Action {
		resp, err := p.Decide(context.Background(), sampleRequest(""))
		require.NoError(t, err)
		return resp.Action
	}

	held := NewScriptProvider(script, 2, false)
	assert.Equal(t, []sim.Action{"wait", "reroute", "reroute", "reroute"},
		[]sim.Action{next(held), next(held), next(held), next(held)})

	cycled := NewScriptProvider(script, 2, true)
	assert.Equal(t, []sim.Action{"wait", "reroute", "wait", "reroute"},
		[]sim.Action{next(cycled), next(cycled), next(cycled), next(cycled)})
}

func TestScriptProvider_WaitCarriesHint(t *testing.T) {
	p := NewScriptProvider([]sim.Action{sim.ActionWait}, 4, false)
	resp, err := p.Decide(context.Background(), sampleRequest(""))
	require.NoError(t, err)
	assert.Equal(t, int64(4), resp.WaitTicks)
}

func TestScriptProvider_EmptyPanics(t *testing.T) {
	assert.Panics(t, func() { NewScriptProvider(nil, 0, false) })
}

func TestFileSource_ListAndWrappedForms(t *testing.T) {
	dir := t.TempDir()
	list := filepath.Join(dir, "list.yaml")
	require.NoError(t, os.WriteFile(list, []byte(`
- id: r1
  keywords: [tray]
  action: wait
  wait_ticks: 3
`), 0o644))
	wrapped := filepath.Join(dir, "wrapped.json")
	require.NoError(t, os.WriteFile(wrapped, []byte(
		`{"documents": [{"id": "r2", "keywords": ["door"], "action": "reroute", "content": "go around"}]}`), 0o644))

	docs, err := FileSource{Path: list}.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, int64(3), docs[0].WaitTicks)

	docs, err = FileSource{Path: wrapped}.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "go around", docs[0].Content)

	_, err = FileSource{Path: filepath.Join(dir, "missing.yaml")}.Load(context.Background())
	assert.Error(t, err)
}

func TestRedisKnowledgeSource_StoreThenLoad(t *testing.T) {
	// GIVEN a redis server holding a stale list
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	src := RedisKnowledgeSource{Client: client, Key: "dinebot:kb"}
	_, err := mr.Lpush("dinebot:kb", `{"id":"stale","keywords":["x"],"action":"wait"}`)
	require.NoError(t, err)

	// WHEN documents are stored and loaded back
	require.NoError(t, src.Store(context.Background(), DefaultDocuments()))
	kb, err := LoadKnowledgeBase(context.Background(), src)

	// THEN the list was replaced, in order
	require.NoError(t, err)
	require.Equal(t, len(DefaultDocuments()), kb.Len())
	assert.Equal(t, "kb-001", kb.Documents()[0].ID)
}

func TestRedisKnowledgeSource_BadEntry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	_, err := mr.Push("kb", "not json")
	require.NoError(t, err)

	_, err = RedisKnowledgeSource{Client: client, Key: "kb"}.Load(context.Background())
	assert.ErrorContains(t, err, "entry 0")
}

func TestHTTPProvider_ParsesReplies(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantAct   sim.Action
		wantTicks int64
	}{
		{"json action", `{"action":"wait","wait_ticks":3}`, sim.ActionWait, 3},
		{"json text", `{"text":"I suggest a new path around it"}`, sim.ActionReroute, 0},
		{"plain text", "The table is UNREACHABLE.", sim.ActionReportUnreachable, 0},
		{"gibberish passes through", "dance", sim.Action("dance"), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got sim.DecisionRequest
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			resp, err := NewHTTPProvider(srv.URL, nil).Decide(context.Background(), sampleRequest("ctx"))

			require.NoError(t, err)
			assert.Equal(t, tt.wantAct, resp.Action)
			assert.Equal(t, tt.wantTicks, resp.WaitTicks)
			assert.Equal(t, "r1", got.RobotID)
			assert.Equal(t, sim.Cell{X: 2, Y: 2}, got.Obstacle)
		})
	}
}

func TestHTTPProvider_ServerErrorIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewHTTPProvider(srv.URL, nil).Decide(context.Background(), sampleRequest(""))
	assert.ErrorContains(t, err, "500")
}

func TestNewProvider_Factory(t *testing.T) {
	ctx := context.Background()

	t.Run("empty name is baseline", func(t *testing.T) {
		p, err := NewProvider(ctx, Options{})
		require.NoError(t, err)
		resp, _ := p.Decide(ctx, sampleRequest(""))
		assert.Equal(t, sim.ActionReportUnreachable, resp.Action)
	})

	t.Run("baseline with configured action", func(t *testing.T) {
		p, err := NewProvider(ctx, Options{Policy: sim.DecisionPolicy{Provider: "baseline", Action: "wait", WaitTicks: int64Ptr(2)}})
		require.NoError(t, err)
		resp, _ := p.Decide(ctx, sampleRequest(""))
		assert.Equal(t, sim.DecisionResponse{Action: sim.ActionWait, WaitTicks: 2}, resp)
	})

	t.Run("script", func(t *testing.T) {
		p, err := NewProvider(ctx, Options{Policy: sim.DecisionPolicy{Provider: "script", Script: []string{"reroute"}}})
		require.NoError(t, err)
		assert.IsType(t, &ScriptProvider{}, p)
	})

	t.Run("rules with injected knowledge", func(t *testing.T) {
		kb, err := NewKnowledgeBase([]Document{{ID: "k", Keywords: []string{"obstacle"}, Action: "wait"}})
		require.NoError(t, err)
		p, err := NewProvider(ctx, Options{Policy: sim.DecisionPolicy{Provider: "rules", TopK: intPtr(1)}, Knowledge: kb})
		require.NoError(t, err)
		resp, _ := p.Decide(ctx, sampleRequest(""))
		assert.Equal(t, sim.ActionWait, resp.Action)
	})

	t.Run("rules from redis without a client fails", func(t *testing.T) {
		_, err := NewProvider(ctx, Options{Policy: sim.DecisionPolicy{Provider: "rules", KnowledgeRedis: "kb"}})
		assert.Error(t, err)
	})

	t.Run("http without url fails", func(t *testing.T) {
		_, err := NewProvider(ctx, Options{Policy: sim.DecisionPolicy{Provider: "http"}})
		assert.Error(t, err)
	})

	t.Run("unknown name panics", func(t *testing.T) {
		assert.Panics(t, func() {
			_, _ = NewProvider(ctx, Options{Policy: sim.DecisionPolicy{Provider: "oracle"}})
		})
	})
}
