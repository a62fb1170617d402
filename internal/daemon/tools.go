package daemon

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/antigravity-dev/meridian/internal/attention"
	"github.com/antigravity-dev/meridian/internal/backup"
	"github.com/antigravity-dev/meridian/internal/compress"
	"github.com/antigravity-dev/meridian/internal/linkgraph"
	"github.com/antigravity-dev/meridian/internal/memory"
	"github.com/antigravity-dev/meridian/internal/rpc"
	"github.com/antigravity-dev/meridian/internal/symbols"
)

// registerTools binds every handler to its wire-visible tool name.
func (d *Daemon) registerTools(r *rpc.ToolRegistry) {
	r.Register("code.index_file", d.codeIndexFile)
	r.Register("code.index_project", d.codeIndexProject)
	r.Register("code.search_symbols", d.codeSearchSymbols)
	r.Register("code.get_definition", d.codeGetDefinition)
	r.Register("code.find_references", d.codeFindReferences)
	r.Register("code.get_dependencies", d.codeGetDependencies)
	r.Register("code.search_patterns", d.codeSearchPatterns)

	r.Register("context.prepare_adaptive", d.contextPrepareAdaptive)
	r.Register("context.compress", d.contextCompress)
	r.Register("context.defragment", d.contextDefragment)

	r.Register("memory.record_episode", d.memoryRecordEpisode)
	r.Register("memory.find_similar_episodes", d.memoryFindSimilarEpisodes)
	r.Register("memory.update_working_set", d.memoryUpdateWorkingSet)
	r.Register("memory.get_statistics", d.memoryGetStatistics)

	r.Register("learning.train_on_success", d.learningTrainOnSuccess)
	r.Register("feedback.mark_useful", d.feedbackMarkUseful)
	r.Register("predict.next_action", d.predictNextAction)

	r.Register("attention.retrieve", d.attentionRetrieve)
	r.Register("attention.analyze_patterns", d.attentionAnalyzePatterns)

	r.Register("session.begin", d.sessionBegin)
	r.Register("session.update", d.sessionUpdate)
	r.Register("session.query", d.sessionQuery)
	r.Register("session.complete", d.sessionComplete)

	r.Register("docs.search", d.docsSearch)
	r.Register("docs.get_for_symbol", d.docsGetForSymbol)

	r.Register("analyze.complexity", d.analyzeComplexity)
	r.Register("analyze.token_cost", d.analyzeTokenCost)

	r.Register("backup.create", d.backupCreate)
	r.Register("backup.list", d.backupList)
	r.Register("backup.get", d.backupGet)
	r.Register("backup.verify", d.backupVerify)
	r.Register("backup.restore", d.backupRestore)
	r.Register("backup.stats", d.backupStats)

	r.Register("links.add", d.linksAdd)
	r.Register("links.get", d.linksGet)
	r.Register("links.remove", d.linksRemove)
	r.Register("links.from_source", d.linksFromSource)
	r.Register("links.to_target", d.linksToTarget)
	r.Register("links.by_type", d.linksByType)
	r.Register("links.cross_level", d.linksCrossLevel)
	r.Register("links.broken", d.linksBroken)
	r.Register("links.validate", d.linksValidate)
	r.Register("links.stats", d.linksStats)
}

func invalidParams(err error) error {
	return &rpc.RPCError{Code: rpc.CodeInvalidParams, Message: err.Error()}
}

func notFound(format string, args ...any) error {
	return &rpc.RPCError{Code: rpc.CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// --- code.* -----------------------------------------------------------

type indexFileParams struct {
	Path string `msgpack:"path"`
}

func (d *Daemon) codeIndexFile(ctx context.Context, req *rpc.Request) (any, error) {
	var p indexFileParams
	if err := bindParams(req.Params, &p); err != nil {
		return nil, invalidParams(err)
	}
	if p.Path == "" {
		return nil, invalidParams(fmt.Errorf("path must not be empty"))
	}
	if err := d.Symbols.UpdateFile(ctx, p.Path, nil, d.ignoreFunc()); err != nil {
		return nil, fmt.Errorf("daemon: index %s: %w", p.Path, err)
	}
	return struct{ OK bool }{true}, nil
}

type indexProjectParams struct {
	Root string `msgpack:"root"`
}

type indexProjectResult struct {
	Indexed int `msgpack:"indexed"`
	Skipped int `msgpack:"skipped"`
}

func (d *Daemon) codeIndexProject(ctx context.Context, req *rpc.Request) (any, error) {
	var p indexProjectParams
	if err := bindParams(req.Params, &p); err != nil {
		return nil, invalidParams(err)
	}
	if p.Root == "" {
		return nil, invalidParams(fmt.Errorf("root must not be empty"))
	}
	indexed, skipped, err := d.IndexProject(ctx, p.Root)
	if err != nil {
		return nil, err
	}
	return indexProjectResult{Indexed: indexed, Skipped: skipped}, nil
}

type searchSymbolsParams struct {
	Query       string   `msgpack:"query"`
	Kinds       []string `msgpack:"kinds"`
	ScopePrefix string   `msgpack:"scope_prefix"`
	Detail      string   `msgpack:"detail"`
	MaxResults  int      `msgpack:"max_results"`
	MaxTokens   int      `msgpack:"max_tokens"`
	Hybrid      bool     `msgpack:"hybrid"`
}

func (d *Daemon) codeSearchSymbols(ctx context.Context, req *rpc.Request) (any, error) {
	var p searchSymbolsParams
	if err := bindParams(req.Params, &p); err != nil {
		return nil, invalidParams(err)
	}
	q := symbols.Query{
		Text:        p.Query,
		ScopePrefix: p.ScopePrefix,
		Detail:      symbols.DetailLevel(p.Detail),
		MaxResults:  p.MaxResults,
		MaxTokens:   p.MaxTokens,
	}
	if len(p.Kinds) > 0 {
		q.Kinds = make(map[symbols.Kind]bool, len(p.Kinds))
		for _, k := range p.Kinds {
			q.Kinds[symbols.Kind(k)] = true
		}
	}
	if p.Hybrid {
		return d.Symbols.HybridSearch(ctx, q), nil
	}
	return d.Symbols.Search(q), nil
}

type getDefinitionParams struct {
	ID               string `msgpack:"id"`
	WithDependencies bool   `msgpack:"with_dependencies"`
}

type getDefinitionResult struct {
	Symbol       symbols.Symbol   `msgpack:"symbol"`
	Lines        []string         `msgpack:"lines"`
	Dependencies []symbols.Symbol `msgpack:"dependencies,omitempty"`
}

func (d *Daemon) codeGetDefinition(ctx context.Context, req *rpc.Request) (any, error) {
	var p getDefinitionParams
	if err := bindParams(req.Params, &p); err != nil {
		return nil, invalidParams(err)
	}
	sym, lines, deps, err := d.Symbols.GetDefinition(p.ID, p.WithDependencies)
	if err != nil {
		return nil, notFound("unknown symbol %s", p.ID)
	}
	return getDefinitionResult{Symbol: sym, Lines: lines, Dependencies: deps}, nil
}

type findReferencesParams struct {
	Target string `msgpack:"target"`
}

func (d *Daemon) codeFindReferences(ctx context.Context, req *rpc.Request) (any, error) {
	var p findReferencesParams
	if err := bindParams(req.Params, &p); err != nil {
		return nil, invalidParams(err)
	}
	if p.Target == "" {
		return nil, invalidParams(fmt.Errorf("target must not be empty"))
	}
	return d.Symbols.FindReferences(p.Target), nil
}

type getDependenciesParams struct {
	Entry     string `msgpack:"entry"`
	Depth     int    `msgpack:"depth"`
	Direction string `msgpack:"direction"`
}

func (d *Daemon) codeGetDependencies(ctx context.Context, req *rpc.Request) (any, error) {
	var p getDependenciesParams
	if err := bindParams(req.Params, &p); err != nil {
		return nil, invalidParams(err)
	}
	dir := symbols.Direction(p.Direction)
	if dir == "" {
		dir = symbols.DirectionBoth
	}
	return d.Symbols.GetDependencies(p.Entry, p.Depth, dir), nil
}

type searchPatternsParams struct {
	ContextMarkers []string `msgpack:"context_markers"`
	MinFrequency   int      `msgpack:"min_frequency"`
}

func (d *Daemon) codeSearchPatterns(ctx context.Context, req *rpc.Request) (any, error) {
	var p searchPatternsParams
	if err := bindParams(req.Params, &p); err != nil {
		return nil, invalidParams(err)
	}
	all, err := d.Memory.Semantic.Patterns()
	if err != nil {
		return nil, fmt.Errorf("daemon: search patterns: %w", err)
	}
	wanted := toSet(p.ContextMarkers)
	var out []memory.CodePattern
	for _, pat := range all {
		if pat.Frequency < p.MinFrequency {
			continue
		}
		if len(wanted) > 0 && !overlaps(wanted, pat.ContextMarkers) {
			continue
		}
		out = append(out, pat)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Frequency > out[j].Frequency })
	return out, nil
}

func toSet(ss []string) map[string]bool {
	m := make(map[string]bool, len(ss))
	for _, s := range ss {
		m[s] = true
	}
	return m
}

func overlaps(set map[string]bool, items []string) bool {
	for _, it := range items {
		if set[it] {
			return true
		}
	}
	return false
}

// --- context.* ----------------------------------------------------------

type prepareAdaptiveParams struct {
	SymbolIDs    []string `msgpack:"symbol_ids"`
	Strategy     string   `msgpack:"strategy"`
	TargetTokens int      `msgpack:"target_tokens"`
}

func (d *Daemon) contextPrepareAdaptive(ctx context.Context, req *rpc.Request) (any, error) {
	var p prepareAdaptiveParams
	if err := bindParams(req.Params, &p); err != nil {
		return nil, invalidParams(err)
	}
	var sb strings.Builder
	for _, id := range p.SymbolIDs {
		_, lines, _, err := d.Symbols.GetDefinition(id, false)
		if err != nil {
			continue
		}
		sb.WriteString(strings.Join(lines, "\n"))
		sb.WriteString("\n\n")
	}
	strategy := compress.Strategy(p.Strategy)
	if strategy == "" {
		strategy = compress.Strategy(d.Config.Compress.DefaultStrategy)
	}
	return compress.Compress(sb.String(), strategy, p.TargetTokens), nil
}

type compressParams struct {
	Text         string `msgpack:"text"`
	Strategy     string `msgpack:"strategy"`
	TargetTokens int    `msgpack:"target_tokens"`
}

func (d *Daemon) contextCompress(ctx context.Context, req *rpc.Request) (any, error) {
	var p compressParams
	if err := bindParams(req.Params, &p); err != nil {
		return nil, invalidParams(err)
	}
	strategy := compress.Strategy(p.Strategy)
	if strategy == "" {
		strategy = compress.Strategy(d.Config.Compress.DefaultStrategy)
	}
	return compress.Compress(p.Text, strategy, p.TargetTokens), nil
}

type defragmentParams struct {
	Fragments    []string `msgpack:"fragments"`
	TargetTokens int      `msgpack:"target_tokens"`
}

type defragmentResult struct {
	compress.CompressedContent
	DuplicatesRemoved int `msgpack:"duplicates_removed"`
}

// contextDefragment deduplicates identical lines across fragments before
// compressing the remainder to target_tokens: remove redundancy first,
// then apply the budget.
func (d *Daemon) contextDefragment(ctx context.Context, req *rpc.Request) (any, error) {
	var p defragmentParams
	if err := bindParams(req.Params, &p); err != nil {
		return nil, invalidParams(err)
	}
	seen := make(map[string]bool)
	var kept []string
	removed := 0
	for _, frag := range p.Fragments {
		for _, line := range strings.Split(frag, "\n") {
			trimmed := strings.TrimSpace(line)
			if trimmed == "" {
				continue
			}
			if seen[trimmed] {
				removed++
				continue
			}
			seen[trimmed] = true
			kept = append(kept, line)
		}
	}
	cc := compress.Compress(strings.Join(kept, "\n"), compress.StrategyHybrid, p.TargetTokens)
	return defragmentResult{CompressedContent: cc, DuplicatesRemoved: removed}, nil
}

// --- memory.* -------------------------------------------------------------

type recordEpisodeParams struct {
	ID              string   `msgpack:"id"`
	TaskDescription string   `msgpack:"task_description"`
	InitialContext  string   `msgpack:"initial_context"`
	ContextMarkers  []string `msgpack:"context_markers"`
	QueriesMade     []string `msgpack:"queries_made"`
	FilesTouched    []string `msgpack:"files_touched"`
	Actions         []string `msgpack:"actions"`
	SolutionPath    string   `msgpack:"solution_path"`
	Outcome         string   `msgpack:"outcome"`
	TokensUsed      int      `msgpack:"tokens_used"`
	SessionID       string   `msgpack:"session_id"`
}

func (p recordEpisodeParams) toEpisode() memory.TaskEpisode {
	return memory.TaskEpisode{
		ID:              p.ID,
		TaskDescription: p.TaskDescription,
		InitialContext:  p.InitialContext,
		ContextMarkers:  p.ContextMarkers,
		QueriesMade:     p.QueriesMade,
		FilesTouched:    p.FilesTouched,
		Actions:         p.Actions,
		SolutionPath:    p.SolutionPath,
		Outcome:         memory.Outcome(p.Outcome),
		TokensUsed:      p.TokensUsed,
	}
}

func (d *Daemon) memoryRecordEpisode(ctx context.Context, req *rpc.Request) (any, error) {
	var p recordEpisodeParams
	if err := bindParams(req.Params, &p); err != nil {
		return nil, invalidParams(err)
	}
	if p.ID == "" {
		return nil, invalidParams(fmt.Errorf("id must not be empty"))
	}
	ep, err := d.Memory.Episodic.RecordEpisode(p.toEpisode())
	if err != nil {
		return nil, fmt.Errorf("daemon: record episode: %w", err)
	}
	if p.SessionID != "" {
		_ = d.Sessions.RecordEpisode(p.SessionID, ep.ID)
	}
	return ep, nil
}

type findSimilarEpisodesParams struct {
	Description string `msgpack:"description"`
	Limit       int    `msgpack:"limit"`
}

func (d *Daemon) memoryFindSimilarEpisodes(ctx context.Context, req *rpc.Request) (any, error) {
	var p findSimilarEpisodesParams
	if err := bindParams(req.Params, &p); err != nil {
		return nil, invalidParams(err)
	}
	return d.Memory.Episodic.FindSimilar(p.Description, p.Limit)
}

type updateWorkingSetParams struct {
	SessionID      string             `msgpack:"session_id"`
	FocusedSymbols map[string]float64 `msgpack:"focused_symbols"`
	PredictedNext  []string           `msgpack:"predicted_next"`
}

func (d *Daemon) memoryUpdateWorkingSet(ctx context.Context, req *rpc.Request) (any, error) {
	var p updateWorkingSetParams
	if err := bindParams(req.Params, &p); err != nil {
		return nil, invalidParams(err)
	}
	pattern := memory.AttentionPattern{FocusedSymbols: p.FocusedSymbols, PredictedNext: p.PredictedNext}
	w := d.Working
	if p.SessionID != "" {
		sess, ok := d.Sessions.Get(p.SessionID)
		if !ok {
			return nil, notFound("unknown session %s", p.SessionID)
		}
		w = sess.Working
	}
	w.Update(pattern)
	return struct {
		ActiveSymbols []string `msgpack:"active_symbols"`
	}{ActiveSymbols: w.ActiveSymbols()}, nil
}

type statisticsResult struct {
	EpisodeCount    int `msgpack:"episode_count"`
	PatternCount    int `msgpack:"pattern_count"`
	WorkingSetUsage int `msgpack:"working_set_usage"`
	SymbolCount     int `msgpack:"symbol_count"`
}

func (d *Daemon) memoryGetStatistics(ctx context.Context, req *rpc.Request) (any, error) {
	episodes, err := d.Memory.Episodic.All()
	if err != nil {
		return nil, fmt.Errorf("daemon: statistics: %w", err)
	}
	patterns, err := d.Memory.Semantic.Patterns()
	if err != nil {
		return nil, fmt.Errorf("daemon: statistics: %w", err)
	}
	return statisticsResult{
		EpisodeCount:    len(episodes),
		PatternCount:    len(patterns),
		WorkingSetUsage: d.Working.CurrentUsage(),
		SymbolCount:     len(d.Symbols.All()),
	}, nil
}

// --- learning.* / feedback.* / predict.* -----------------------------------

func (d *Daemon) learningTrainOnSuccess(ctx context.Context, req *rpc.Request) (any, error) {
	var p recordEpisodeParams
	if err := bindParams(req.Params, &p); err != nil {
		return nil, invalidParams(err)
	}
	if p.ID == "" {
		return nil, invalidParams(fmt.Errorf("id must not be empty"))
	}
	ep := p.toEpisode()
	ep.Outcome = memory.OutcomeSuccess
	if _, err := d.Memory.Episodic.RecordEpisode(ep); err != nil {
		return nil, fmt.Errorf("daemon: train on success: %w", err)
	}
	report, err := d.Memory.Consolidate()
	if err != nil {
		return nil, fmt.Errorf("daemon: consolidate after training: %w", err)
	}
	return report, nil
}

type markUsefulParams struct {
	EpisodeID string `msgpack:"episode_id"`
}

func (d *Daemon) feedbackMarkUseful(ctx context.Context, req *rpc.Request) (any, error) {
	var p markUsefulParams
	if err := bindParams(req.Params, &p); err != nil {
		return nil, invalidParams(err)
	}
	if err := d.Memory.Episodic.IncrementAccess(p.EpisodeID); err != nil {
		return nil, notFound("unknown episode %s", p.EpisodeID)
	}
	return struct{ OK bool }{true}, nil
}

type predictNextActionParams struct {
	Symbols []string `msgpack:"symbols"`
	Context string   `msgpack:"context"`
}

func (d *Daemon) predictNextAction(ctx context.Context, req *rpc.Request) (any, error) {
	var p predictNextActionParams
	if err := bindParams(req.Params, &p); err != nil {
		return nil, invalidParams(err)
	}
	return d.Retriever.PredictNext(attention.Query{Symbols: p.Symbols, Context: p.Context}), nil
}

// --- attention.* ------------------------------------------------------------

type attentionRetrieveParams struct {
	Symbols     []string `msgpack:"symbols"`
	Context     string   `msgpack:"context"`
	TokenBudget int      `msgpack:"token_budget"`
}

func (d *Daemon) attentionRetrieve(ctx context.Context, req *rpc.Request) (any, error) {
	var p attentionRetrieveParams
	if err := bindParams(req.Params, &p); err != nil {
		return nil, invalidParams(err)
	}
	return d.Retriever.Retrieve(attention.Query{Symbols: p.Symbols, Context: p.Context}, p.TokenBudget), nil
}

type analyzePatternsParams struct {
	Symbols []string `msgpack:"symbols"`
	Context string   `msgpack:"context"`
}

func (d *Daemon) attentionAnalyzePatterns(ctx context.Context, req *rpc.Request) (any, error) {
	var p analyzePatternsParams
	if err := bindParams(req.Params, &p); err != nil {
		return nil, invalidParams(err)
	}
	return d.Retriever.AnalyzePattern(attention.Query{Symbols: p.Symbols, Context: p.Context}), nil
}

// --- session.* ----------------------------------------------------------

func (d *Daemon) sessionBegin(ctx context.Context, req *rpc.Request) (any, error) {
	s := d.Sessions.Begin()
	return struct {
		SessionID string `msgpack:"session_id"`
	}{SessionID: s.ID}, nil
}

type sessionUpdateParams struct {
	SessionID      string             `msgpack:"session_id"`
	Context        string             `msgpack:"context"`
	FocusedSymbols map[string]float64 `msgpack:"focused_symbols"`
	PredictedNext  []string           `msgpack:"predicted_next"`
}

func (d *Daemon) sessionUpdate(ctx context.Context, req *rpc.Request) (any, error) {
	var p sessionUpdateParams
	if err := bindParams(req.Params, &p); err != nil {
		return nil, invalidParams(err)
	}
	sess, ok := d.Sessions.Get(p.SessionID)
	if !ok {
		return nil, notFound("unknown session %s", p.SessionID)
	}
	pattern := memory.AttentionPattern{FocusedSymbols: p.FocusedSymbols, PredictedNext: p.PredictedNext}
	if err := d.Retriever.RecordAttention(pattern, p.Context); err != nil {
		return nil, fmt.Errorf("daemon: session update: %w", err)
	}
	sess.Working.Update(pattern)
	return struct {
		ActiveSymbols []string `msgpack:"active_symbols"`
	}{ActiveSymbols: sess.Working.ActiveSymbols()}, nil
}

type sessionIDParams struct {
	SessionID string `msgpack:"session_id"`
}

type sessionQueryResult struct {
	ActiveSymbols []string           `msgpack:"active_symbols"`
	Weights       map[string]float64 `msgpack:"weights"`
}

func (d *Daemon) sessionQuery(ctx context.Context, req *rpc.Request) (any, error) {
	var p sessionIDParams
	if err := bindParams(req.Params, &p); err != nil {
		return nil, invalidParams(err)
	}
	sess, ok := d.Sessions.Get(p.SessionID)
	if !ok {
		return nil, notFound("unknown session %s", p.SessionID)
	}
	active := sess.Working.ActiveSymbols()
	weights := make(map[string]float64, len(active))
	for _, id := range active {
		weights[id] = sess.Working.GetAttentionWeight(id)
	}
	return sessionQueryResult{ActiveSymbols: active, Weights: weights}, nil
}

type sessionCompleteResult struct {
	EpisodeIDs []string                    `msgpack:"episode_ids"`
	Report     memory.ConsolidationReport `msgpack:"report"`
}

func (d *Daemon) sessionComplete(ctx context.Context, req *rpc.Request) (any, error) {
	var p sessionIDParams
	if err := bindParams(req.Params, &p); err != nil {
		return nil, invalidParams(err)
	}
	sess, ok := d.Sessions.Complete(p.SessionID)
	if !ok {
		return nil, notFound("unknown session %s", p.SessionID)
	}
	report, err := d.Memory.Consolidate()
	if err != nil {
		return nil, fmt.Errorf("daemon: session complete consolidate: %w", err)
	}
	return sessionCompleteResult{EpisodeIDs: sess.EpisodeIDs, Report: report}, nil
}

// --- docs.* ---------------------------------------------------------------

type docsSearchParams struct {
	Query      string `msgpack:"query"`
	MaxResults int    `msgpack:"max_results"`
}

func (d *Daemon) docsSearch(ctx context.Context, req *rpc.Request) (any, error) {
	var p docsSearchParams
	if err := bindParams(req.Params, &p); err != nil {
		return nil, invalidParams(err)
	}
	if p.Query == "" {
		return []symbols.Symbol{}, nil
	}
	needle := strings.ToLower(p.Query)
	var out []symbols.Symbol
	for _, s := range d.Symbols.All() {
		if s.Metadata.DocComment == "" {
			continue
		}
		if strings.Contains(strings.ToLower(s.Metadata.DocComment), needle) {
			out = append(out, s)
			if p.MaxResults > 0 && len(out) >= p.MaxResults {
				break
			}
		}
	}
	return out, nil
}

type docsGetForSymbolParams struct {
	SymbolID string `msgpack:"symbol_id"`
}

func (d *Daemon) docsGetForSymbol(ctx context.Context, req *rpc.Request) (any, error) {
	var p docsGetForSymbolParams
	if err := bindParams(req.Params, &p); err != nil {
		return nil, invalidParams(err)
	}
	s, ok := d.Symbols.Get(p.SymbolID)
	if !ok {
		return nil, notFound("unknown symbol %s", p.SymbolID)
	}
	return struct {
		DocComment string `msgpack:"doc_comment"`
	}{DocComment: s.Metadata.DocComment}, nil
}

// --- analyze.* --------------------------------------------------------------

type analyzeSymbolParams struct {
	SymbolID string `msgpack:"symbol_id"`
}

func (d *Daemon) analyzeComplexity(ctx context.Context, req *rpc.Request) (any, error) {
	var p analyzeSymbolParams
	if err := bindParams(req.Params, &p); err != nil {
		return nil, invalidParams(err)
	}
	s, ok := d.Symbols.Get(p.SymbolID)
	if !ok {
		return nil, notFound("unknown symbol %s", p.SymbolID)
	}
	return struct {
		CyclomaticComplexity int `msgpack:"cyclomatic_complexity"`
	}{CyclomaticComplexity: s.Metadata.CyclomaticComplexity}, nil
}

type analyzeTokenCostParams struct {
	SymbolID string `msgpack:"symbol_id"`
	Text     string `msgpack:"text"`
}

func (d *Daemon) analyzeTokenCost(ctx context.Context, req *rpc.Request) (any, error) {
	var p analyzeTokenCostParams
	if err := bindParams(req.Params, &p); err != nil {
		return nil, invalidParams(err)
	}
	if p.Text != "" {
		return struct {
			TokenCost int `msgpack:"token_cost"`
		}{TokenCost: compress.EstimateTokens(p.Text)}, nil
	}
	s, ok := d.Symbols.Get(p.SymbolID)
	if !ok {
		return nil, notFound("unknown symbol %s", p.SymbolID)
	}
	return struct {
		TokenCost int `msgpack:"token_cost"`
	}{TokenCost: s.Metadata.TokenCost}, nil
}

// --- backup.* ---------------------------------------------------------------

type backupCreateParams struct {
	Type string   `msgpack:"type"`
	Tags []string `msgpack:"tags"`
}

func (d *Daemon) backupCreate(ctx context.Context, req *rpc.Request) (any, error) {
	var p backupCreateParams
	if err := bindParams(req.Params, &p); err != nil {
		return nil, invalidParams(err)
	}
	typ := backup.Type(p.Type)
	if typ == "" {
		typ = backup.TypeManual
	}
	return d.Backup.Create(typ, d.Config.Storage.SchemaVersion, p.Tags)
}

func (d *Daemon) backupList(ctx context.Context, req *rpc.Request) (any, error) {
	return d.Backup.List()
}

type backupIDParams struct {
	ID string `msgpack:"id"`
}

func (d *Daemon) backupGet(ctx context.Context, req *rpc.Request) (any, error) {
	var p backupIDParams
	if err := bindParams(req.Params, &p); err != nil {
		return nil, invalidParams(err)
	}
	meta, err := d.Backup.Get(p.ID)
	if err != nil {
		return nil, notFound("unknown backup %s", p.ID)
	}
	return meta, nil
}

func (d *Daemon) backupVerify(ctx context.Context, req *rpc.Request) (any, error) {
	var p backupIDParams
	if err := bindParams(req.Params, &p); err != nil {
		return nil, invalidParams(err)
	}
	if err := d.Backup.Verify(p.ID); err != nil {
		return nil, &rpc.RPCError{Code: rpc.CodeInternalError, Message: err.Error()}
	}
	return struct{ OK bool }{true}, nil
}

func (d *Daemon) backupRestore(ctx context.Context, req *rpc.Request) (any, error) {
	var p backupIDParams
	if err := bindParams(req.Params, &p); err != nil {
		return nil, invalidParams(err)
	}
	if err := d.Backup.Restore(p.ID, d.Store, d.Config.Storage.SchemaVersion); err != nil {
		return nil, fmt.Errorf("daemon: restore %s: %w", p.ID, err)
	}
	if err := d.Symbols.Load(); err != nil {
		return nil, fmt.Errorf("daemon: reload symbol index after restore: %w", err)
	}
	return struct{ OK bool }{true}, nil
}

func (d *Daemon) backupStats(ctx context.Context, req *rpc.Request) (any, error) {
	return d.Backup.GetStats()
}

// --- links.* ----------------------------------------------------------------

type entityParams struct {
	Level  string `msgpack:"level"`
	ID     string `msgpack:"id"`
	Anchor string `msgpack:"anchor"`
}

func (e entityParams) toEntity() linkgraph.Entity {
	return linkgraph.Entity{Level: linkgraph.KnowledgeLevel(e.Level), ID: e.ID, Anchor: e.Anchor}
}

type linksAddParams struct {
	ID               string       `msgpack:"id"`
	Type             string       `msgpack:"type"`
	Source           entityParams `msgpack:"source"`
	Target           entityParams `msgpack:"target"`
	Confidence       float64      `msgpack:"confidence"`
	ExtractionMethod string       `msgpack:"extraction_method"`
	Creator          string       `msgpack:"creator"`
}

func (d *Daemon) linksAdd(ctx context.Context, req *rpc.Request) (any, error) {
	var p linksAddParams
	if err := bindParams(req.Params, &p); err != nil {
		return nil, invalidParams(err)
	}
	method := linkgraph.ExtractionMethod(p.ExtractionMethod)
	if method == "" {
		method = linkgraph.MethodManual
	}
	l := linkgraph.Link{
		ID:               p.ID,
		Type:             linkgraph.LinkType(p.Type),
		Source:           p.Source.toEntity(),
		Target:           p.Target.toEntity(),
		Confidence:       p.Confidence,
		ExtractionMethod: method,
		Creator:          p.Creator,
	}
	if err := d.Links.AddLink(l); err != nil {
		return nil, invalidParams(err)
	}
	return l, nil
}

func (d *Daemon) linksGet(ctx context.Context, req *rpc.Request) (any, error) {
	var p backupIDParams
	if err := bindParams(req.Params, &p); err != nil {
		return nil, invalidParams(err)
	}
	l, ok := d.Links.GetLink(p.ID)
	if !ok {
		return nil, notFound("unknown link %s", p.ID)
	}
	return l, nil
}

func (d *Daemon) linksRemove(ctx context.Context, req *rpc.Request) (any, error) {
	var p backupIDParams
	if err := bindParams(req.Params, &p); err != nil {
		return nil, invalidParams(err)
	}
	if err := d.Links.RemoveLink(p.ID); err != nil {
		return nil, notFound("unknown link %s", p.ID)
	}
	return struct{ OK bool }{true}, nil
}

func (d *Daemon) linksFromSource(ctx context.Context, req *rpc.Request) (any, error) {
	var p entityParams
	if err := bindParams(req.Params, &p); err != nil {
		return nil, invalidParams(err)
	}
	return d.Links.FindLinksFromSource(p.toEntity()), nil
}

func (d *Daemon) linksToTarget(ctx context.Context, req *rpc.Request) (any, error) {
	var p entityParams
	if err := bindParams(req.Params, &p); err != nil {
		return nil, invalidParams(err)
	}
	return d.Links.FindLinksToTarget(p.toEntity()), nil
}

type linksByTypeParams struct {
	Type string `msgpack:"type"`
}

func (d *Daemon) linksByType(ctx context.Context, req *rpc.Request) (any, error) {
	var p linksByTypeParams
	if err := bindParams(req.Params, &p); err != nil {
		return nil, invalidParams(err)
	}
	return d.Links.FindLinksByType(linkgraph.LinkType(p.Type)), nil
}

type linksCrossLevelParams struct {
	From string `msgpack:"from"`
	To   string `msgpack:"to"`
}

func (d *Daemon) linksCrossLevel(ctx context.Context, req *rpc.Request) (any, error) {
	var p linksCrossLevelParams
	if err := bindParams(req.Params, &p); err != nil {
		return nil, invalidParams(err)
	}
	return d.Links.FindCrossLevelLinks(linkgraph.KnowledgeLevel(p.From), linkgraph.KnowledgeLevel(p.To)), nil
}

func (d *Daemon) linksBroken(ctx context.Context, req *rpc.Request) (any, error) {
	return d.Links.FindBrokenLinks(), nil
}

type linksValidateParams struct {
	ID     string `msgpack:"id"`
	Status string `msgpack:"status"`
}

func (d *Daemon) linksValidate(ctx context.Context, req *rpc.Request) (any, error) {
	var p linksValidateParams
	if err := bindParams(req.Params, &p); err != nil {
		return nil, invalidParams(err)
	}
	status := linkgraph.ValidationStatus(p.Status)
	switch status {
	case linkgraph.StatusUnchecked, linkgraph.StatusValid, linkgraph.StatusBroken, linkgraph.StatusStale:
	default:
		return nil, invalidParams(fmt.Errorf("unknown validation status %q", p.Status))
	}
	if err := d.Links.ValidateLink(p.ID, status); err != nil {
		return nil, notFound("unknown link %s", p.ID)
	}
	return struct{ OK bool }{true}, nil
}

func (d *Daemon) linksStats(ctx context.Context, req *rpc.Request) (any, error) {
	return d.Links.GetStatistics(), nil
}
